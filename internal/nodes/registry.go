package nodes

import (
	"sort"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

// Constructor builds a node from validated parameters.
type Constructor func(Parameters) (*Node, error)

type registration struct {
	description string
	build       Constructor
}

var registry = map[string]registration{}

// Register adds a node constructor under its name. Called from the init
// functions of the node files; duplicate names panic at startup.
func Register(name, description string, c Constructor) {
	if _, dup := registry[name]; dup {
		panic("nodes: duplicate registration of " + name)
	}
	registry[name] = registration{description: description, build: c}
}

// New builds the named node, validating the parameters it needs.
func New(name string, p Parameters) (*Node, error) {
	reg, ok := registry[name]
	if !ok {
		return nil, apperrors.NewConfigError("unknown node %q (available: %v)", name, List())
	}
	return reg.build(p)
}

// List returns the registered node names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the registered description for a node name.
func Describe(name string) string {
	return registry[name].description
}
