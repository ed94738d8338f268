package driver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/progress"
	"github.com/qhlab/qcal/internal/quam"
	"github.com/qhlab/qcal/internal/sequence"
)

// frequencyTolHz is the detuning window within which a drive is treated as
// resonant with a transition.
const frequencyTolHz = 1e3

// progressGranularity caps how many progress updates a section emits.
const progressGranularity = 50

// Truth holds the hidden physical parameters of a simulated qubit: the values
// a calibration run is supposed to discover.
type Truth struct {
	// EFPiAmplitude is the true e->f pi pulse amplitude in volts.
	EFPiAmplitude float64
	// T2EchoSec is the true echo coherence time in seconds.
	T2EchoSec float64
	// ReadoutCenters are the noiseless (I, Q) responses in volts for the
	// g, e and f states.
	ReadoutCenters [3][2]float64
}

// DefaultTruth derives plausible hidden parameters for a qubit: the true E->F
// pi amplitude sits at 80% of the calibrated G->E amplitude, so an
// uncalibrated EF pulse is visibly off.
func DefaultTruth(q *quam.Qubit) Truth {
	base := 0.1
	if op, ok := q.XY.Operations["x180"]; ok {
		base = op.Amplitude
	}
	return Truth{
		EFPiAmplitude: 0.8 * base,
		T2EchoSec:     20e-6,
		ReadoutCenters: [3][2]float64{
			{0.0008, 0.0020}, // g
			{0.0015, 0.0000}, // e
			{0.0035, 0.0000}, // f
		},
	}
}

// Simulator is an Executor that integrates a small 3-level density-matrix
// model per qubit instead of talking to hardware. Shot averaging is collapsed
// analytically: the noiseless response is computed once per sweep point and
// Gaussian readout noise is added with the variance of an N-shot average.
type Simulator struct {
	machine    *quam.Machine
	truth      map[string]Truth
	noiseSigma float64
	seed       int64
	shotDelay  time.Duration
}

// SimOption configures a Simulator.
type SimOption func(*Simulator)

// WithNoiseSigma sets the per-shot readout noise standard deviation in volts.
func WithNoiseSigma(sigma float64) SimOption {
	return func(s *Simulator) { s.noiseSigma = sigma }
}

// WithSeed fixes the noise RNG seed for reproducible runs.
func WithSeed(seed int64) SimOption {
	return func(s *Simulator) { s.seed = seed }
}

// WithTruth overrides the hidden parameters of one qubit.
func WithTruth(qubit string, truth Truth) SimOption {
	return func(s *Simulator) { s.truth[qubit] = truth }
}

// WithShotDelay slows the simulation down for live-display demonstrations.
func WithShotDelay(d time.Duration) SimOption {
	return func(s *Simulator) { s.shotDelay = d }
}

// NewSimulator creates a simulator for the given machine state.
func NewSimulator(m *quam.Machine, opts ...SimOption) *Simulator {
	s := &Simulator{
		machine:    m,
		truth:      make(map[string]Truth),
		noiseSigma: 2e-4,
		seed:       time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for name, q := range m.Qubits {
		if _, ok := s.truth[name]; !ok {
			s.truth[name] = DefaultTruth(q)
		}
	}
	return s
}

// Execute admits the program and starts simulating its sections concurrently,
// one goroutine per qubit.
func (s *Simulator) Execute(ctx context.Context, prog *sequence.Program) (Job, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	for _, sec := range prog.Sections {
		if _, ok := s.machine.Qubits[sec.Qubit]; !ok {
			return nil, apperrors.NewConfigError("program addresses unknown qubit %q", sec.Qubit)
		}
	}

	job := &simJob{
		progressCh: make(chan progress.ProgressUpdate, len(prog.Sections)*progressGranularity),
		done:       make(chan struct{}),
		result: &Result{
			Buffers:     make(map[string][]float64),
			SweepValues: append([]float64(nil), prog.Sweep.Values...),
		},
	}

	go func() {
		defer close(job.done)
		defer close(job.progressCh)

		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex

		for i, sec := range prog.Sections {
			idx, section := i, sec
			g.Go(func() error {
				buffers, err := s.runSection(gctx, prog, section, idx, job.progressCh)
				if err != nil {
					return err
				}
				mu.Lock()
				for name, buf := range buffers {
					job.result.Buffers[name] = buf
				}
				mu.Unlock()
				return nil
			})
		}

		err := g.Wait()
		job.mu.Lock()
		job.err = err
		if err != nil {
			job.report = fmt.Sprintf("simulation aborted after %s: %v", time.Since(start).Round(time.Millisecond), err)
		} else {
			job.report = fmt.Sprintf("simulated %d sections, %d sweep points, %d shots in %s",
				len(prog.Sections), prog.SweepLen(), prog.Shots, time.Since(start).Round(time.Millisecond))
		}
		job.mu.Unlock()
	}()

	return job, nil
}

// runSection simulates one qubit's instruction list over the full sweep.
func (s *Simulator) runSection(ctx context.Context, prog *sequence.Program, sec sequence.QubitSection, secIdx int, progressCh chan<- progress.ProgressUpdate) (map[string][]float64, error) {
	q := s.machine.Qubits[sec.Qubit]
	truth := s.truth[sec.Qubit]
	streams := prog.StreamsFor(sec.Qubit)
	rng := rand.New(rand.NewSource(s.seed + int64(secIdx)))
	demod := demodScale(q)

	buffers := make(map[string][]float64, len(streams))
	for _, st := range streams {
		buffers[st.Name] = make([]float64, prog.SweepLen())
	}

	// Averaging an N-shot Gaussian collapses to a single draw at sigma/sqrt(N).
	avgSigma := s.noiseSigma / math.Sqrt(float64(prog.Shots))

	reportEvery := prog.SweepLen() / progressGranularity
	if reportEvery == 0 {
		reportEvery = 1
	}

	for pt, sweepVal := range prog.Sweep.Values {
		select {
		case <-ctx.Done():
			return nil, apperrors.ExecutionError{Cause: ctx.Err()}
		default:
		}

		rho := groundState()
		freqs := map[string]float64{
			sequence.ChannelXY(sec.Qubit):        q.XY.IntermediateFrequencyHz,
			sequence.ChannelResonator(sec.Qubit): q.Resonator.IntermediateFrequencyHz,
		}

		streamPos := 0
		for _, ins := range sec.Instructions {
			switch ins.Kind {
			case sequence.OpUpdateFrequency:
				freqs[ins.Channel] = ins.FrequencyHz

			case sequence.OpPlay:
				scale := ins.AmplitudeScale
				if ins.ScaleFromSweep {
					scale = sweepVal
				}
				s.applyDrive(&rho, q, truth, ins, freqs[ins.Channel], scale)

			case sequence.OpWait:
				ns := ins.DurationNs
				if ins.DurationFromSweep {
					ns = int(sweepVal)
				}
				if !ins.DurationFromSweep && prog.ThermalizationNs > 0 && ns >= prog.ThermalizationNs {
					rho = groundState()
				} else if truth.T2EchoSec > 0 {
					rho.dephase(math.Exp(-float64(ns) * 1e-9 / truth.T2EchoSec))
				}

			case sequence.OpMeasure:
				streamPos = s.measure(&rho, truth, streams, streamPos, buffers, pt, avgSigma, demod, rng)

			case sequence.OpAlign, sequence.OpResetFrame:
				// No effect in this model: sections are per qubit and the
				// rotating-frame phase is absorbed into the drive axis.
			}
		}

		if (pt+1)%reportEvery == 0 || pt == prog.SweepLen()-1 {
			frac := float64(pt+1) / float64(prog.SweepLen())
			progressCh <- progress.ProgressUpdate{
				QubitIndex: secIdx,
				Value:      frac,
				ShotsDone:  int(frac * float64(prog.Shots)),
				ShotsTotal: prog.Shots,
			}
		}
		if s.shotDelay > 0 {
			time.Sleep(s.shotDelay)
		}
	}
	return buffers, nil
}

// applyDrive rotates the density matrix according to which transition the
// channel is currently resonant with. Off-resonant drives are dropped.
func (s *Simulator) applyDrive(rho *density, q *quam.Qubit, truth Truth, ins sequence.Instruction, channelFreq, scale float64) {
	op, ok := q.XY.Operations[ins.Operation]
	if !ok {
		return
	}
	amp := scale * op.Amplitude

	geFreq := q.XY.IntermediateFrequencyHz
	efFreq := q.XY.IntermediateFrequencyHz - q.AnharmonicityHz

	switch {
	case math.Abs(channelFreq-geFreq) < frequencyTolHz:
		gePi := op.Amplitude
		if x180, ok := q.XY.Operations["x180"]; ok {
			gePi = x180.Amplitude
		}
		if gePi != 0 {
			rho.rotate(0, 1, math.Pi*amp/gePi, op.AxisAngleRad)
		}
	case math.Abs(channelFreq-efFreq) < frequencyTolHz:
		if truth.EFPiAmplitude != 0 {
			rho.rotate(1, 2, math.Pi*amp/truth.EFPiAmplitude, op.AxisAngleRad)
		}
	}
}

// measure reads the resonator response for the current state and fills the
// next stream(s) of the section, returning the advanced stream position.
// IQ values leave the stream processor in raw demodulation units; state
// streams are already level indices and carry no unit.
func (s *Simulator) measure(rho *density, truth Truth, streams []sequence.Stream, pos int, buffers map[string][]float64, pt int, avgSigma, demod float64, rng *rand.Rand) int {
	if pos >= len(streams) {
		return pos
	}
	pops := rho.populations()

	if streams[pos].Kind == sequence.StreamState {
		// Thresholded readout: mean assigned level over the averaging loop.
		mean := pops[1] + 2*pops[2]
		buffers[streams[pos].Name][pt] = mean + rng.NormFloat64()*avgSigma
		return pos + 1
	}

	var iv, qv float64
	for level := 0; level < 3; level++ {
		iv += pops[level] * truth.ReadoutCenters[level][0]
		qv += pops[level] * truth.ReadoutCenters[level][1]
	}
	buffers[streams[pos].Name][pt] = (iv + rng.NormFloat64()*avgSigma) * demod
	buffers[streams[pos+1].Name][pt] = (qv + rng.NormFloat64()*avgSigma) * demod
	return pos + 2
}

// demodScale maps a voltage response onto the raw demodulation units the
// stream processor reports; the dataset's ConvertIQToV inverts it.
func demodScale(q *quam.Qubit) float64 {
	if q.Resonator == nil || q.Resonator.ReadoutLengthNs <= 0 {
		return 1
	}
	return float64(q.Resonator.ReadoutLengthNs) / 4096.0
}

// simJob is the Simulator's Job implementation.
type simJob struct {
	progressCh chan progress.ProgressUpdate
	done       chan struct{}

	mu     sync.Mutex
	result *Result
	err    error
	report string
}

// Progress returns the per-qubit progress channel.
func (j *simJob) Progress() <-chan progress.ProgressUpdate {
	return j.progressCh
}

// Result blocks until the simulation finishes.
func (j *simJob) Result(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, apperrors.ExecutionError{Cause: ctx.Err()}
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	return j.result, nil
}

// ExecutionReport summarizes the run.
func (j *simJob) ExecutionReport() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.report == "" {
		return "job still running"
	}
	return strings.TrimSpace(j.report)
}
