package driver

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/qhlab/qcal/internal/quam"
	"github.com/qhlab/qcal/internal/sequence"
)

// powerRabiProgram builds the error-amplified E->F amplitude sweep for q1.
func powerRabiProgram(t *testing.T, m *quam.Machine, amps []float64) *sequence.Program {
	t.Helper()
	q := m.Qubits["q1"]
	b := sequence.NewBuilder().
		WithShots(200).
		WithSweep("amp_factor", "", amps).
		WithThermalization(m.ThermalizationTime())
	b.Qubit("q1").
		UpdateFrequency(sequence.ChannelResonator("q1"), q.Resonator.IntermediateFrequencyHz+q.GEFFrequencyShiftHz).
		UpdateFrequency(sequence.ChannelXY("q1"), q.XY.IntermediateFrequencyHz).
		Play(sequence.ChannelXY("q1"), "x180").
		UpdateFrequency(sequence.ChannelXY("q1"), q.XY.IntermediateFrequencyHz-q.AnharmonicityHz).
		PlaySwept(sequence.ChannelXY("q1"), "x180").
		Align().
		MeasureIQ("readout", "").
		WaitNs(sequence.ChannelResonator("q1"), m.ThermalizationTime())
	prog, err := b.Build()
	if err != nil {
		t.Fatalf("building program: %v", err)
	}
	return prog
}

func runJob(t *testing.T, sim *Simulator, prog *sequence.Program) *Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job, err := sim.Execute(ctx, prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for range job.Progress() {
		// Drain.
	}
	res, err := job.Result(ctx)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	return res
}

// demodUnits scales an expected voltage response into the raw demodulation
// units the simulator reports, matching the hardware stream processor.
func demodUnits(m *quam.Machine, volts float64) float64 {
	return volts * float64(m.Qubits["q1"].Resonator.ReadoutLengthNs) / 4096.0
}

func TestSimulatorPowerRabiOscillation(t *testing.T) {
	t.Parallel()
	m := quam.DefaultMachine(1)
	x180 := m.Qubits["q1"].XY.Operations["x180"].Amplitude
	truth := DefaultTruth(m.Qubits["q1"])
	sim := NewSimulator(m, WithSeed(7), WithNoiseSigma(1e-4))

	var amps []float64
	for a := 0.0; a < 1.5; a += 0.005 {
		amps = append(amps, a)
	}
	res := runJob(t, sim, powerRabiProgram(t, m, amps))

	i1 := res.Buffer("I1")
	if len(i1) != len(amps) {
		t.Fatalf("I1 length = %d, want %d", len(i1), len(amps))
	}
	tol := demodUnits(m, 5e-4)

	// At zero prefactor the qubit sits in |e>.
	if want := demodUnits(m, truth.ReadoutCenters[1][0]); math.Abs(i1[0]-want) > tol {
		t.Errorf("I1[0] = %g, want ~%g (|e> response)", i1[0], want)
	}

	// At the true pi prefactor the qubit reaches |f>.
	piFactor := truth.EFPiAmplitude / x180
	piIdx := int(piFactor / 0.005)
	if want := demodUnits(m, truth.ReadoutCenters[2][0]); math.Abs(i1[piIdx]-want) > tol {
		t.Errorf("I1 at prefactor %.3f = %g, want ~%g (|f> response)",
			amps[piIdx], i1[piIdx], want)
	}

	// The trace oscillates: a full period later the qubit is back near |e>.
	fullIdx := int(2 * piFactor / 0.005)
	if want := demodUnits(m, truth.ReadoutCenters[1][0]); fullIdx < len(i1) && math.Abs(i1[fullIdx]-want) > tol {
		t.Errorf("I1 at prefactor %.3f = %g, want ~%g (back to |e>)",
			amps[fullIdx], i1[fullIdx], want)
	}
}

func TestSimulatorEchoDecay(t *testing.T) {
	t.Parallel()
	m := quam.DefaultMachine(1)
	truth := DefaultTruth(m.Qubits["q1"])
	sim := NewSimulator(m, WithSeed(3), WithNoiseSigma(1e-5))

	idleNs := []float64{16, 5_000, 20_000, 80_000}
	b := sequence.NewBuilder().
		WithShots(400).
		WithSweep("idle_time", "ns", idleNs).
		WithThermalization(m.ThermalizationTime())
	b.Qubit("q1").
		Play(sequence.ChannelXY("q1"), "x90").
		WaitSwept(sequence.ChannelXY("q1")).
		Play(sequence.ChannelXY("q1"), "x180").
		WaitSwept(sequence.ChannelXY("q1")).
		Play(sequence.ChannelXY("q1"), "-x90").
		Align().
		MeasureIQ("readout", "")
	prog, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	res := runJob(t, sim, prog)

	i1 := res.Buffer("I1")
	gI := demodUnits(m, truth.ReadoutCenters[0][0])
	eI := demodUnits(m, truth.ReadoutCenters[1][0])

	// Excited-state population from the response, p = (I - Ig) / (Ie - Ig),
	// should follow (1 - exp(-2t/T2)) / 2.
	for k, tNs := range idleNs {
		p := (i1[k] - gI) / (eI - gI)
		want := 0.5 * (1 - math.Exp(-2*tNs*1e-9/truth.T2EchoSec))
		if math.Abs(p-want) > 0.05 {
			t.Errorf("p(t=%gns) = %.3f, want %.3f", tNs, p, want)
		}
	}
}

func TestSimulatorThermalizationResets(t *testing.T) {
	t.Parallel()
	m := quam.DefaultMachine(1)
	truth := DefaultTruth(m.Qubits["q1"])
	sim := NewSimulator(m, WithSeed(11), WithNoiseSigma(1e-5))

	// Excite, measure, thermalize, measure again: second readout sees |g>.
	b := sequence.NewBuilder().
		WithShots(100).
		WithSweep("shot", "", []float64{1, 2, 3}).
		WithThermalization(m.ThermalizationTime())
	b.Qubit("q1").
		Play(sequence.ChannelXY("q1"), "x180").
		MeasureIQ("readout", "e").
		WaitNs(sequence.ChannelXY("q1"), m.ThermalizationTime()).
		MeasureIQ("readout", "g")
	prog, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	res := runJob(t, sim, prog)

	tol := demodUnits(m, 5e-4)
	if got, want := res.Buffer("I_e1")[0], demodUnits(m, truth.ReadoutCenters[1][0]); math.Abs(got-want) > tol {
		t.Errorf("excited readout I = %g, want ~%g", got, want)
	}
	if got, want := res.Buffer("I_g1")[0], demodUnits(m, truth.ReadoutCenters[0][0]); math.Abs(got-want) > tol {
		t.Errorf("post-thermalization readout I = %g, want ~%g", got, want)
	}
}

func TestSimulatorRejectsUnknownQubit(t *testing.T) {
	t.Parallel()
	m := quam.DefaultMachine(1)
	sim := NewSimulator(m)

	b := sequence.NewBuilder().WithShots(1).WithSweep("x", "", []float64{1})
	b.Qubit("q99").MeasureIQ("readout", "")
	prog, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sim.Execute(context.Background(), prog); err == nil {
		t.Error("expected error for unknown qubit")
	}
}

func TestSimulatorCancellation(t *testing.T) {
	t.Parallel()
	m := quam.DefaultMachine(1)
	sim := NewSimulator(m, WithShotDelay(5*time.Millisecond))

	var amps []float64
	for a := 0.0; a < 1.5; a += 0.005 {
		amps = append(amps, a)
	}
	ctx, cancel := context.WithCancel(context.Background())
	job, err := sim.Execute(ctx, powerRabiProgram(t, m, amps))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	cancel()

	if _, err := job.Result(context.Background()); err == nil {
		t.Error("expected cancellation error from Result")
	}
}

func TestSimulatorProgressReachesCompletion(t *testing.T) {
	t.Parallel()
	m := quam.DefaultMachine(1)
	sim := NewSimulator(m, WithSeed(1))

	var amps []float64
	for a := 0.0; a < 1.0; a += 0.01 {
		amps = append(amps, a)
	}
	job, err := sim.Execute(context.Background(), powerRabiProgram(t, m, amps))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var last float64
	for u := range job.Progress() {
		if u.Value < last {
			t.Errorf("progress went backwards: %g after %g", u.Value, last)
		}
		last = u.Value
		if u.ShotsTotal != 200 {
			t.Errorf("ShotsTotal = %d, want 200", u.ShotsTotal)
		}
	}
	if last != 1.0 {
		t.Errorf("final progress = %g, want 1.0", last)
	}
	if _, err := job.Result(context.Background()); err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if report := job.ExecutionReport(); report == "" {
		t.Error("expected non-empty execution report")
	}
}
