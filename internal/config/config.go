// Package config handles command-line flag parsing and environment
// variable overrides for the qcal application.
//
// Resolution chain (highest priority first):
//  1. CLI flags (--shots, --timeout, ...)
//  2. Environment variables (QCAL_SHOTS, QCAL_TIMEOUT, ...)
//  3. Adaptive defaults (defaults.go)
//  4. Static defaults in DefaultConfig
package config

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

// EnvPrefix is prepended to every environment variable read by this
// package.
const EnvPrefix = "QCAL_"

// AppConfig holds the full application configuration assembled from
// defaults, environment variables and command-line flags.
type AppConfig struct {
	// Node is the name of the calibration node to run.
	Node string
	// Qubits is a comma-separated list of qubit names. Empty means all
	// active qubits of the machine.
	Qubits string
	// Shots is the number of averaging shots per sweep point. Zero picks
	// an adaptive default.
	Shots int

	// Amplitude-prefactor sweep bounds for the power Rabi node.
	MinAmpFactor  float64
	MaxAmpFactor  float64
	AmpFactorStep float64

	// Wait-time sweep bounds for the echo node, in nanoseconds.
	MinWaitNs  int
	MaxWaitNs  int
	WaitPoints int
	LogSpacing bool
	// StateDiscrimination measures thresholded qubit states instead of
	// raw I/Q where the node supports it.
	StateDiscrimination bool

	// Timeout bounds a single node run. Zero picks an adaptive default.
	Timeout time.Duration

	// StateFile is the machine state JSON to load. Empty starts from the
	// built-in default machine.
	StateFile string
	// StorePath is the calibration snapshot database. Empty disables
	// persistence.
	StorePath string
	// OutputDir is the root for run artifacts (data, figures).
	OutputDir string
	// LoadDataID re-analyses a previous run instead of executing.
	LoadDataID string

	// Simulate selects the built-in simulator backend.
	Simulate bool
	// Seed fixes the simulator's noise generator. Zero means random.
	Seed int64
	// NoiseSigma is the simulator's per-shot readout noise.
	NoiseSigma float64
	// NumQubits sizes the default machine when no state file is given.
	NumQubits int

	// ListNodes prints the node registry and exits.
	ListNodes bool
	// InitState writes a fresh default machine state file and exits.
	InitState bool
	// Completion generates a shell completion script and exits.
	Completion string

	// MetricsListen enables the Prometheus endpoint on this address.
	MetricsListen string

	Quiet      bool
	Verbose    bool
	NoPlot     bool
	NoColor    bool
	TUI        bool
	Interactive bool
	LogLevel   string
	OutputFile string
	// Theme selects the color theme (dark, light, orange, none).
	Theme string
}

// DefaultConfig returns the static configuration defaults.
func DefaultConfig() AppConfig {
	return AppConfig{
		Shots:         0,
		MinAmpFactor:  0.0,
		MaxAmpFactor:  1.5,
		AmpFactorStep: 0.005,
		MinWaitNs:     16,
		MaxWaitNs:     120_000,
		WaitPoints:    40,
		LogSpacing:    true,
		Timeout:       0,
		StorePath:     "qcal.db",
		OutputDir:     "qcal-runs",
		Simulate:      true,
		NumQubits:     2,
		LogLevel:      "info",
		Theme:         "dark",
	}
}

// ParseConfig parses the command-line arguments into an AppConfig,
// applies environment overrides for unset flags, and validates the
// result. availableNodes is used in the usage text and for validation.
func ParseConfig(programName string, args []string, errWriter io.Writer, availableNodes []string) (AppConfig, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errWriter)

	fs.StringVar(&cfg.Node, "node", cfg.Node, "calibration node to run")
	fs.StringVar(&cfg.Qubits, "qubits", cfg.Qubits, "comma-separated qubit names (default: all active)")
	fs.IntVar(&cfg.Shots, "shots", cfg.Shots, "averaging shots per sweep point (0 = adaptive)")
	fs.Float64Var(&cfg.MinAmpFactor, "min-amp-factor", cfg.MinAmpFactor, "lower amplitude prefactor of the sweep")
	fs.Float64Var(&cfg.MaxAmpFactor, "max-amp-factor", cfg.MaxAmpFactor, "upper amplitude prefactor of the sweep (exclusive)")
	fs.Float64Var(&cfg.AmpFactorStep, "amp-factor-step", cfg.AmpFactorStep, "amplitude prefactor step")
	fs.IntVar(&cfg.MinWaitNs, "min-wait", cfg.MinWaitNs, "shortest idle time in ns")
	fs.IntVar(&cfg.MaxWaitNs, "max-wait", cfg.MaxWaitNs, "longest idle time in ns")
	fs.IntVar(&cfg.WaitPoints, "wait-points", cfg.WaitPoints, "number of idle-time points")
	fs.BoolVar(&cfg.LogSpacing, "log-spacing", cfg.LogSpacing, "space idle times logarithmically")
	fs.BoolVar(&cfg.StateDiscrimination, "state-discrimination", cfg.StateDiscrimination, "measure thresholded qubit states instead of raw I/Q")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "maximum run duration (0 = adaptive)")
	fs.StringVar(&cfg.StateFile, "state", cfg.StateFile, "machine state JSON file")
	fs.StringVar(&cfg.StorePath, "store", cfg.StorePath, "calibration snapshot database path (empty = disabled)")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "root directory for run artifacts")
	fs.StringVar(&cfg.LoadDataID, "load-data-id", cfg.LoadDataID, "re-analyse a stored run instead of executing")
	fs.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "use the built-in simulator backend")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "simulator noise seed (0 = random)")
	fs.Float64Var(&cfg.NoiseSigma, "noise-sigma", cfg.NoiseSigma, "simulator per-shot readout noise")
	fs.IntVar(&cfg.NumQubits, "num-qubits", cfg.NumQubits, "qubit count of the default machine")
	fs.BoolVar(&cfg.ListNodes, "list", cfg.ListNodes, "list available calibration nodes and exit")
	fs.BoolVar(&cfg.InitState, "init-state", cfg.InitState, "write a default machine state file and exit")
	fs.StringVar(&cfg.Completion, "completion", cfg.Completion, "generate completion script (bash, zsh, fish, powershell)")
	fs.StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "serve Prometheus metrics on this address")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "minimal output for scripts")
	fs.BoolVar(&cfg.Quiet, "q", cfg.Quiet, "minimal output for scripts (shorthand)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "verbose output")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose output (shorthand)")
	fs.BoolVar(&cfg.NoPlot, "no-plot", cfg.NoPlot, "skip figure rendering")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "disable colored output")
	fs.BoolVar(&cfg.TUI, "tui", cfg.TUI, "interactive dashboard during the run")
	fs.BoolVar(&cfg.Interactive, "interactive", cfg.Interactive, "start an interactive calibration shell")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Theme, "theme", cfg.Theme, "color theme (dark, light, orange, none)")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "write a text summary of the run to this file")
	fs.StringVar(&cfg.OutputFile, "o", cfg.OutputFile, "write a text summary of the run to this file (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(errWriter, "Usage: %s [flags]\n\n", programName)
		fmt.Fprintf(errWriter, "Superconducting-qubit calibration runner.\n\n")
		fmt.Fprintf(errWriter, "Available nodes: %s\n\nFlags:\n", strings.Join(availableNodes, ", "))
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg, fs)

	if err := validate(cfg, availableNodes); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validate rejects configurations that no mode of the application can
// run with. Node-specific sweep bounds are validated by the node
// constructors.
func validate(cfg AppConfig, availableNodes []string) error {
	if cfg.Shots < 0 {
		return apperrors.NewConfigError("shots must not be negative, got %d", cfg.Shots)
	}
	if cfg.NumQubits <= 0 {
		return apperrors.NewConfigError("num-qubits must be positive, got %d", cfg.NumQubits)
	}
	if cfg.Timeout < 0 {
		return apperrors.NewConfigError("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.Node != "" && !containsNode(availableNodes, cfg.Node) {
		sorted := append([]string(nil), availableNodes...)
		sort.Strings(sorted)
		return apperrors.NewConfigError("unknown node %q (available: %s)", cfg.Node, strings.Join(sorted, ", "))
	}
	return nil
}

func containsNode(nodes []string, name string) bool {
	for _, n := range nodes {
		if n == name {
			return true
		}
	}
	return false
}

// QubitList splits the comma-separated Qubits field into names,
// dropping empty entries.
func (c AppConfig) QubitList() []string {
	if c.Qubits == "" {
		return nil
	}
	parts := strings.Split(c.Qubits, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}
