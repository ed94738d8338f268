package sequence

import "fmt"

// Builder assembles a Program fluently. Section builders append instructions
// for one qubit at a time; Build validates the result.
type Builder struct {
	prog Program
}

// NewBuilder creates an empty program builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithShots sets the averaging repetition count.
func (b *Builder) WithShots(shots int) *Builder {
	b.prog.Shots = shots
	return b
}

// WithSweep sets the swept-parameter axis.
func (b *Builder) WithSweep(name, unit string, values []float64) *Builder {
	b.prog.Sweep = Sweep{Name: name, Unit: unit, Values: values}
	return b
}

// WithThermalization sets the inter-shot reset wait in nanoseconds.
func (b *Builder) WithThermalization(ns int) *Builder {
	b.prog.ThermalizationNs = ns
	return b
}

// Qubit opens an instruction section for the named qubit. Sections execute
// independently; the 1-based section order defines stream numbering.
func (b *Builder) Qubit(name string) *SectionBuilder {
	b.prog.Sections = append(b.prog.Sections, QubitSection{Qubit: name})
	return &SectionBuilder{
		b:     b,
		index: len(b.prog.Sections),
	}
}

// Build validates and returns the assembled program.
func (b *Builder) Build() (*Program, error) {
	prog := b.prog
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return &prog, nil
}

// SectionBuilder appends instructions to one qubit section.
type SectionBuilder struct {
	b     *Builder
	index int // 1-based section number, used for stream naming
}

func (s *SectionBuilder) section() *QubitSection {
	return &s.b.prog.Sections[s.index-1]
}

func (s *SectionBuilder) append(ins Instruction) *SectionBuilder {
	sec := s.section()
	sec.Instructions = append(sec.Instructions, ins)
	return s
}

// Play schedules the named operation at its calibrated amplitude.
func (s *SectionBuilder) Play(channel, operation string) *SectionBuilder {
	return s.PlayScaled(channel, operation, 1.0)
}

// PlayScaled schedules the named operation with a fixed amplitude prefactor.
func (s *SectionBuilder) PlayScaled(channel, operation string, scale float64) *SectionBuilder {
	return s.append(Instruction{
		Kind:           OpPlay,
		Channel:        channel,
		Operation:      operation,
		AmplitudeScale: scale,
	})
}

// PlaySwept schedules the named operation with the sweep value as its
// amplitude prefactor.
func (s *SectionBuilder) PlaySwept(channel, operation string) *SectionBuilder {
	return s.append(Instruction{
		Kind:           OpPlay,
		Channel:        channel,
		Operation:      operation,
		ScaleFromSweep: true,
	})
}

// UpdateFrequency retunes a channel for the remainder of the iteration.
func (s *SectionBuilder) UpdateFrequency(channel string, hz float64) *SectionBuilder {
	return s.append(Instruction{Kind: OpUpdateFrequency, Channel: channel, FrequencyHz: hz})
}

// WaitNs idles a channel for a fixed duration.
func (s *SectionBuilder) WaitNs(channel string, ns int) *SectionBuilder {
	return s.append(Instruction{Kind: OpWait, Channel: channel, DurationNs: ns})
}

// WaitSwept idles a channel for the sweep value, interpreted in nanoseconds.
func (s *SectionBuilder) WaitSwept(channel string) *SectionBuilder {
	return s.append(Instruction{Kind: OpWait, Channel: channel, DurationFromSweep: true})
}

// Align synchronizes all channels of this qubit before the next instruction.
func (s *SectionBuilder) Align() *SectionBuilder {
	return s.append(Instruction{Kind: OpAlign})
}

// ResetFrame zeroes the rotating-frame phase of a channel.
func (s *SectionBuilder) ResetFrame(channel string) *SectionBuilder {
	return s.append(Instruction{Kind: OpResetFrame, Channel: channel})
}

// MeasureIQ schedules a demodulated readout and declares the I/Q result
// streams. An empty label yields "I<n>"/"Q<n>"; a label yields
// "I_<label><n>"/"Q_<label><n>", with n the 1-based section number.
func (s *SectionBuilder) MeasureIQ(operation, label string) *SectionBuilder {
	sec := s.section()
	s.b.prog.Streams = append(s.b.prog.Streams,
		Stream{Name: streamName("I", label, s.index), Qubit: sec.Qubit, Kind: StreamIQ},
		Stream{Name: streamName("Q", label, s.index), Qubit: sec.Qubit, Kind: StreamIQ},
	)
	return s.append(Instruction{
		Kind:      OpMeasure,
		Channel:   ChannelResonator(sec.Qubit),
		Operation: operation,
	})
}

// MeasureState schedules a thresholded readout and declares a state stream.
func (s *SectionBuilder) MeasureState(operation, label string) *SectionBuilder {
	sec := s.section()
	s.b.prog.Streams = append(s.b.prog.Streams,
		Stream{Name: streamName("state", label, s.index), Qubit: sec.Qubit, Kind: StreamState},
	)
	return s.append(Instruction{
		Kind:      OpMeasure,
		Channel:   ChannelResonator(sec.Qubit),
		Operation: operation,
	})
}

func streamName(prefix, label string, index int) string {
	if label == "" {
		return fmt.Sprintf("%s%d", prefix, index)
	}
	return fmt.Sprintf("%s_%s%d", prefix, label, index)
}
