package quam

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

// DefaultMaxDriveAmplitude is the drive-line amplitude ceiling in volts.
// Fitted pulse amplitudes are clamped to this value when a channel does not
// declare its own limit (0.3 V matches the OPX+ output range; MW front ends
// allow up to 1.0).
const DefaultMaxDriveAmplitude = 0.3

// DefaultThermalizationTimeNs is the fallback qubit reset wait between shots.
const DefaultThermalizationTimeNs = 100_000

// Machine is the root of the device calibration state: every qubit with its
// drive and readout channels, plus machine-wide timing parameters. It is the
// in-memory form of the persisted state file.
type Machine struct {
	// Qubits maps qubit name to its calibration record.
	Qubits map[string]*Qubit `json:"qubits"`
	// ActiveQubitNames lists the qubits addressed when no explicit selection is given.
	ActiveQubitNames []string `json:"active_qubits"`
	// ThermalizationTimeNs is the inter-shot wait letting qubits relax to ground.
	ThermalizationTimeNs int `json:"thermalization_time_ns"`
}

// Qubit holds the calibration state of a single transmon.
type Qubit struct {
	// Name is the qubit identifier (e.g. "q1").
	Name string `json:"name"`
	// GridLocation positions the qubit on the device plot grid ("col,row").
	GridLocation string `json:"grid_location,omitempty"`
	// GEFFrequencyShiftHz is the readout frequency shift optimized for G/E/F
	// discrimination. Zero when never calibrated.
	GEFFrequencyShiftHz float64 `json:"gef_frequency_shift_hz"`
	// AnharmonicityHz separates the E->F transition from G->E.
	AnharmonicityHz float64 `json:"anharmonicity_hz"`
	// T1Sec is the relaxation time in seconds.
	T1Sec float64 `json:"t1_sec,omitempty"`
	// T2EchoSec is the echo coherence time in seconds.
	T2EchoSec float64 `json:"t2_echo_sec,omitempty"`
	// XY is the microwave drive channel.
	XY *XYChannel `json:"xy"`
	// Resonator is the dispersive readout channel.
	Resonator *Resonator `json:"resonator"`
}

// XYChannel describes a qubit drive line and its calibrated pulse operations.
type XYChannel struct {
	// IntermediateFrequencyHz is the channel IF driving the G->E transition.
	IntermediateFrequencyHz float64 `json:"intermediate_frequency_hz"`
	// MaxDriveAmplitude is the channel amplitude ceiling in volts.
	// Zero means DefaultMaxDriveAmplitude.
	MaxDriveAmplitude float64 `json:"max_drive_amplitude,omitempty"`
	// Operations maps operation name (e.g. "x180", "EF_x180") to its pulse.
	Operations map[string]*PulseOperation `json:"operations"`
}

// PulseOperation is a calibrated drive pulse definition.
type PulseOperation struct {
	// Amplitude is the pulse amplitude in volts.
	Amplitude float64 `json:"amplitude"`
	// LengthNs is the pulse duration in nanoseconds.
	LengthNs int `json:"length_ns"`
	// Alpha is the DRAG correction coefficient.
	Alpha float64 `json:"alpha"`
	// AnharmonicityHz is the anharmonicity the DRAG correction was computed for.
	AnharmonicityHz float64 `json:"anharmonicity_hz"`
	// AxisAngleRad is the rotation axis angle in the equatorial plane.
	AxisAngleRad float64 `json:"axis_angle_rad"`
	// DigitalMarker names the digital trigger waveform, if any.
	DigitalMarker string `json:"digital_marker,omitempty"`
}

// Resonator describes a readout resonator channel and its discrimination state.
type Resonator struct {
	// IntermediateFrequencyHz is the readout IF.
	IntermediateFrequencyHz float64 `json:"intermediate_frequency_hz"`
	// ReadoutLengthNs is the measurement pulse duration in nanoseconds.
	ReadoutLengthNs int `json:"readout_length_ns"`
	// RotationAngleRad aligns the G-E separation with the I quadrature.
	RotationAngleRad float64 `json:"rotation_angle_rad"`
	// GEThreshold is the I-quadrature threshold separating ground from excited.
	GEThreshold float64 `json:"ge_threshold"`
	// FidelityMatrix is the 2x2 readout assignment fidelity matrix
	// (rows: prepared state, columns: assigned state).
	FidelityMatrix [2][2]float64 `json:"fidelity_matrix,omitempty"`
}

// ActiveQubits resolves the machine's active qubit list into records, sorted
// by name for deterministic iteration.
func (m *Machine) ActiveQubits() ([]*Qubit, error) {
	if len(m.ActiveQubitNames) == 0 {
		names := make([]string, 0, len(m.Qubits))
		for name := range m.Qubits {
			names = append(names, name)
		}
		sort.Strings(names)
		return m.QubitsByName(names)
	}
	return m.QubitsByName(m.ActiveQubitNames)
}

// QubitsByName resolves qubit names into records, preserving order.
// Unknown names are configuration errors.
func (m *Machine) QubitsByName(names []string) ([]*Qubit, error) {
	qubits := make([]*Qubit, 0, len(names))
	for _, name := range names {
		q, ok := m.Qubits[name]
		if !ok {
			return nil, apperrors.NewConfigError("unknown qubit %q in state file", name)
		}
		qubits = append(qubits, q)
	}
	return qubits, nil
}

// EnsureGEFShift back-fills the G/E/F readout shift on records that predate
// the field. Decoding leaves it at zero, which is also the uncalibrated
// value, so this only has to repair non-finite values from hand-edited
// state files. Nodes call it before building programs that shift the
// resonator.
func (q *Qubit) EnsureGEFShift() {
	if math.IsNaN(q.GEFFrequencyShiftHz) || math.IsInf(q.GEFFrequencyShiftHz, 0) {
		q.GEFFrequencyShiftHz = 0
	}
}

// ThermalizationTime returns the inter-shot reset wait, falling back to the
// default when the state file predates the field.
func (m *Machine) ThermalizationTime() int {
	if m.ThermalizationTimeNs <= 0 {
		return DefaultThermalizationTimeNs
	}
	return m.ThermalizationTimeNs
}

// MaxAmplitude returns the channel's amplitude ceiling in volts.
func (c *XYChannel) MaxAmplitude() float64 {
	if c.MaxDriveAmplitude <= 0 {
		return DefaultMaxDriveAmplitude
	}
	return c.MaxDriveAmplitude
}

// Operation looks up a calibrated pulse by name.
func (c *XYChannel) Operation(name string) (*PulseOperation, error) {
	op, ok := c.Operations[name]
	if !ok {
		return nil, apperrors.NewConfigError("operation %q is not calibrated on this channel", name)
	}
	return op, nil
}

// SetOperationAmplitude updates (or creates from template) the named operation
// with the given amplitude, clamped to the channel ceiling. It reports whether
// clamping occurred.
func (c *XYChannel) SetOperationAmplitude(name string, template *PulseOperation, amplitude float64) bool {
	clamped := false
	limit := c.MaxAmplitude()
	if math.Abs(amplitude) > limit {
		amplitude = math.Copysign(limit, amplitude)
		clamped = true
	}
	op, ok := c.Operations[name]
	if !ok {
		cloned := *template
		op = &cloned
		if c.Operations == nil {
			c.Operations = make(map[string]*PulseOperation)
		}
		c.Operations[name] = op
	}
	op.Amplitude = amplitude
	return clamped
}

// Validate checks the structural integrity of the machine state.
func (m *Machine) Validate() error {
	if len(m.Qubits) == 0 {
		return apperrors.ValidationError{Field: "qubits", Message: "state file defines no qubits"}
	}
	for name, q := range m.Qubits {
		if q == nil {
			return apperrors.ValidationError{Field: name, Message: "qubit record is null"}
		}
		if q.Name == "" {
			q.Name = name
		}
		if q.Name != name {
			return apperrors.ValidationError{
				Field:   name,
				Message: fmt.Sprintf("qubit name %q does not match map key", q.Name),
			}
		}
		if q.XY == nil {
			return apperrors.ValidationError{Field: name, Message: "missing xy channel"}
		}
		if q.Resonator == nil {
			return apperrors.ValidationError{Field: name, Message: "missing resonator channel"}
		}
		for opName, op := range q.XY.Operations {
			if op == nil {
				return apperrors.ValidationError{
					Field:   name,
					Message: fmt.Sprintf("operation %q is null", opName),
				}
			}
			if op.LengthNs <= 0 {
				return apperrors.ValidationError{
					Field:   name,
					Message: fmt.Sprintf("operation %q has non-positive length", opName),
				}
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the machine, used for transactional state
// updates: nodes mutate the clone and the original stays untouched until save.
func (m *Machine) Clone() *Machine {
	out := &Machine{
		Qubits:               make(map[string]*Qubit, len(m.Qubits)),
		ActiveQubitNames:     append([]string(nil), m.ActiveQubitNames...),
		ThermalizationTimeNs: m.ThermalizationTimeNs,
	}
	for name, q := range m.Qubits {
		qc := *q
		if q.XY != nil {
			xy := *q.XY
			xy.Operations = make(map[string]*PulseOperation, len(q.XY.Operations))
			for opName, op := range q.XY.Operations {
				opc := *op
				xy.Operations[opName] = &opc
			}
			qc.XY = &xy
		}
		if q.Resonator != nil {
			res := *q.Resonator
			qc.Resonator = &res
		}
		out.Qubits[name] = &qc
	}
	return out
}
