// Package sequence defines the in-memory pulse program representation handed
// to a driver for execution.
//
// A program mirrors the structure of a hardware sequencing script: an
// averaging loop over shots, an inner sweep over one pulse parameter, and a
// per-qubit list of instructions referencing named channels and calibrated
// operations. Measurement results are declared as streams that the control
// system buffers by sweep point and averages over shots.
package sequence

import (
	"fmt"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

// Instruction kinds.
const (
	OpPlay            = "play"
	OpMeasure         = "measure"
	OpUpdateFrequency = "update_frequency"
	OpWait            = "wait"
	OpAlign           = "align"
	OpResetFrame      = "reset_frame"
)

// Stream kinds.
const (
	StreamIQ    = "iq"
	StreamState = "state"
)

// Amplitude prefactors must stay within the hardware fixed-point range.
const (
	MinAmplitudeScale = -2.0
	MaxAmplitudeScale = 2.0 // exclusive
)

// Instruction is a single sequencing statement on one channel.
type Instruction struct {
	// Kind is one of the Op* constants.
	Kind string
	// Channel names the target channel (see ChannelXY / ChannelResonator).
	Channel string
	// Operation names the calibrated pulse for OpPlay / OpMeasure.
	Operation string
	// AmplitudeScale multiplies the operation amplitude for OpPlay.
	AmplitudeScale float64
	// ScaleFromSweep substitutes the sweep value for AmplitudeScale.
	ScaleFromSweep bool
	// FrequencyHz is the new channel frequency for OpUpdateFrequency.
	FrequencyHz float64
	// DurationNs is the wait length for OpWait.
	DurationNs int
	// DurationFromSweep substitutes the sweep value (in ns) for DurationNs.
	DurationFromSweep bool
}

// Sweep is the swept parameter axis: one buffer slot per value.
type Sweep struct {
	// Name labels the axis (e.g. "amp_factor", "idle_time").
	Name string
	// Unit is a display unit for the axis values.
	Unit string
	// Values are the sweep points, innermost loop order.
	Values []float64
}

// Stream declares a measurement result buffer.
type Stream struct {
	// Name is the stream identifier (e.g. "I1", "Q1", "state2").
	Name string
	// Qubit is the qubit the stream belongs to.
	Qubit string
	// Kind is StreamIQ or StreamState.
	Kind string
}

// QubitSection is the instruction list executed for one qubit, repeated for
// every shot and sweep value.
type QubitSection struct {
	// Qubit is the qubit name.
	Qubit string
	// Instructions run in order for each (shot, sweep value) pair.
	Instructions []Instruction
}

// Program is a complete executable pulse program.
type Program struct {
	// Shots is the number of averaging repetitions.
	Shots int
	// Sweep is the swept-parameter axis shared by all sections.
	Sweep Sweep
	// Sections holds one instruction list per qubit.
	Sections []QubitSection
	// Streams declares the result buffers the driver must fill.
	Streams []Stream
	// ThermalizationNs is the inter-shot reset wait.
	ThermalizationNs int
}

// ChannelXY names a qubit's drive channel.
func ChannelXY(qubit string) string { return qubit + ".xy" }

// ChannelResonator names a qubit's readout channel.
func ChannelResonator(qubit string) string { return qubit + ".resonator" }

// Validate checks the structural invariants the driver relies on: a positive
// shot count, a non-empty sweep, in-range amplitude prefactors, and at least
// one declared stream per section.
func (p *Program) Validate() error {
	if p.Shots <= 0 {
		return apperrors.ValidationError{Field: "shots", Message: "must be positive"}
	}
	if len(p.Sweep.Values) == 0 {
		return apperrors.ValidationError{Field: "sweep", Message: "sweep has no values"}
	}
	if len(p.Sections) == 0 {
		return apperrors.ValidationError{Field: "sections", Message: "program has no qubit sections"}
	}

	streamsByQubit := make(map[string]int)
	for _, st := range p.Streams {
		streamsByQubit[st.Qubit]++
	}

	for _, sec := range p.Sections {
		if streamsByQubit[sec.Qubit] == 0 {
			return apperrors.ValidationError{
				Field:   sec.Qubit,
				Message: "qubit section declares no result stream",
			}
		}
		sweepScales := false
		for _, ins := range sec.Instructions {
			if ins.Kind == OpPlay {
				if ins.ScaleFromSweep {
					sweepScales = true
					continue
				}
				if !scaleInRange(ins.AmplitudeScale) {
					return apperrors.ValidationError{
						Field: sec.Qubit,
						Message: fmt.Sprintf("amplitude scale %g outside [%g, %g)",
							ins.AmplitudeScale, MinAmplitudeScale, MaxAmplitudeScale),
					}
				}
			}
		}
		if sweepScales {
			for _, v := range p.Sweep.Values {
				if !scaleInRange(v) {
					return apperrors.ValidationError{
						Field: "sweep",
						Message: fmt.Sprintf("swept amplitude scale %g outside [%g, %g)",
							v, MinAmplitudeScale, MaxAmplitudeScale),
					}
				}
			}
		}
	}
	return nil
}

// SweepLen returns the number of sweep points (the stream buffer length).
func (p *Program) SweepLen() int { return len(p.Sweep.Values) }

// StreamsFor returns the streams declared for the given qubit, in order.
func (p *Program) StreamsFor(qubit string) []Stream {
	var out []Stream
	for _, st := range p.Streams {
		if st.Qubit == qubit {
			out = append(out, st)
		}
	}
	return out
}

func scaleInRange(v float64) bool {
	return v >= MinAmplitudeScale && v < MaxAmplitudeScale
}
