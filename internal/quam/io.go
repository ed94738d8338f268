package quam

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

// Load reads and validates a machine state file.
func Load(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapError(err, "reading state file %q", path)
	}
	var m Machine
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.WrapError(err, "parsing state file %q", path)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the machine state atomically: the file is written to a
// temporary sibling and renamed into place, so a crash never leaves a
// truncated state file behind.
func (m *Machine) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return apperrors.WrapError(err, "encoding state")
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperrors.WrapError(err, "creating temporary state file in %q", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.WrapError(err, "writing state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "closing state file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "replacing state file %q", path)
	}
	return nil
}

// DefaultMachine builds a plausible fresh device state for numQubits qubits.
// It is used to bootstrap a state file on first run and by tests.
func DefaultMachine(numQubits int) *Machine {
	m := &Machine{
		Qubits:               make(map[string]*Qubit, numQubits),
		ThermalizationTimeNs: DefaultThermalizationTimeNs,
	}
	for i := 1; i <= numQubits; i++ {
		name := fmt.Sprintf("q%d", i)
		m.ActiveQubitNames = append(m.ActiveQubitNames, name)
		m.Qubits[name] = &Qubit{
			Name:                name,
			GridLocation:        fmt.Sprintf("%d,0", i-1),
			AnharmonicityHz:     -200e6 - 5e6*float64(i),
			GEFFrequencyShiftHz: 0,
			XY: &XYChannel{
				IntermediateFrequencyHz: 100e6 + 10e6*float64(i),
				Operations: map[string]*PulseOperation{
					"x180": {
						Amplitude:       0.1 + 0.01*float64(i),
						LengthNs:        40,
						Alpha:           -1.0,
						AnharmonicityHz: -200e6 - 5e6*float64(i),
					},
					"x90": {
						Amplitude:       (0.1 + 0.01*float64(i)) / 2,
						LengthNs:        40,
						Alpha:           -1.0,
						AnharmonicityHz: -200e6 - 5e6*float64(i),
					},
					"-x90": {
						Amplitude:       (0.1 + 0.01*float64(i)) / 2,
						LengthNs:        40,
						Alpha:           -1.0,
						AnharmonicityHz: -200e6 - 5e6*float64(i),
						AxisAngleRad:    math.Pi,
					},
				},
			},
			Resonator: &Resonator{
				IntermediateFrequencyHz: -50e6 + 2e6*float64(i),
				ReadoutLengthNs:         1000,
			},
		}
	}
	return m
}
