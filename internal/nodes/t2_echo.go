package nodes

import (
	"context"
	"errors"
	"math"
	"path/filepath"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/fit"
	"github.com/qhlab/qcal/internal/logging"
	"github.com/qhlab/qcal/internal/plot"
	"github.com/qhlab/qcal/internal/sequence"
)

// T2EchoName is the registry name of the node.
const T2EchoName = "t2_echo"

func init() {
	Register(T2EchoName,
		"Hahn echo coherence time measurement (x90 - t - x180 - t - -x90)",
		NewT2Echo)
}

// T2EchoResult is the per-qubit analysis outcome of an echo run.
type T2EchoResult struct {
	Fit        fit.DecayFit
	T2EchoSec  float64
	FailReason string
}

// NewT2Echo builds the echo node: sweep the idle time of a Hahn echo
// sequence, fit the exponential decay of the readout signal against the
// total echo duration, and update the qubit's T2echo. Qubits whose trace
// fails to fit keep their previous value.
func NewT2Echo(p Parameters) (*Node, error) {
	if p.Shots <= 0 {
		return nil, apperrors.NewConfigError("shots must be positive, got %d", p.Shots)
	}
	if p.WaitPoints < 4 {
		return nil, apperrors.NewConfigError("wait sweep needs at least 4 points, got %d", p.WaitPoints)
	}
	if p.MinWaitNs < 4 || p.MaxWaitNs <= p.MinWaitNs {
		return nil, apperrors.NewConfigError("invalid wait bounds [%d, %d] ns", p.MinWaitNs, p.MaxWaitNs)
	}

	return &Node{
		Name:        T2EchoName,
		Description: Describe(T2EchoName),
		Actions: []Action{
			{Name: "resolve_qubits", Run: resolveQubits},
			{Name: "create_program", Run: echoProgram(p)},
			{Name: "execute", Skip: skipWhenLoading, Run: executeProgram},
			{Name: "load_data", Skip: skipWhenNotLoading, Run: loadResult},
			{Name: "save_result", Skip: skipWhenLoading, Run: saveResult},
			{Name: "fetch", Run: fetchDataset},
			{Name: "analyse", Run: analyseT2Echo},
			{Name: "plot", Skip: skipPlot, Run: plotT2Echo},
			{Name: "update_state", Run: updateT2Echo},
			{Name: "save_state", Skip: skipWithoutStore, Run: saveSnapshot(T2EchoName)},
		},
	}, nil
}

// waitSweep expands the idle-time bounds into WaitPoints values,
// logarithmically spaced when requested.
func waitSweep(p Parameters) []float64 {
	vals := make([]float64, p.WaitPoints)
	if p.LogSpacing {
		lo, hi := math.Log(float64(p.MinWaitNs)), math.Log(float64(p.MaxWaitNs))
		for i := range vals {
			frac := float64(i) / float64(p.WaitPoints-1)
			vals[i] = math.Round(math.Exp(lo + frac*(hi-lo)))
		}
	} else {
		step := float64(p.MaxWaitNs-p.MinWaitNs) / float64(p.WaitPoints-1)
		for i := range vals {
			vals[i] = math.Round(float64(p.MinWaitNs) + float64(i)*step)
		}
	}
	return vals
}

// echoProgram builds the Hahn echo sequence per qubit: pi/2, idle, pi,
// idle, -pi/2, readout. With state discrimination the readout saves the
// thresholded qubit state instead of the raw quadratures.
func echoProgram(p Parameters) func(context.Context, *RunContext) error {
	return func(_ context.Context, rc *RunContext) error {
		b := sequence.NewBuilder().
			WithShots(p.Shots).
			WithSweep("idle_time", "ns", waitSweep(p)).
			WithThermalization(rc.Machine.ThermalizationTime())

		for _, q := range rc.Qubits {
			xy := sequence.ChannelXY(q.Name)
			s := b.Qubit(q.Name).
				UpdateFrequency(xy, q.XY.IntermediateFrequencyHz).
				Play(xy, "x90").
				WaitSwept(xy).
				Play(xy, "x180").
				WaitSwept(xy).
				Play(xy, "-x90").
				Align()
			if p.StateDiscrimination {
				s.MeasureState("readout", "")
			} else {
				s.MeasureIQ("readout", "")
			}
			s.WaitNs(xy, rc.Machine.ThermalizationTime())
		}

		prog, err := b.Build()
		if err != nil {
			return err
		}
		rc.Program = prog
		return nil
	}
}

// echoVariable is the dataset series the echo decay is fitted on: the
// bloch projection of the discriminated state, or the raw I quadrature.
func echoVariable(p Parameters) string {
	if p.StateDiscrimination {
		return "bloch"
	}
	return "I"
}

// analyseT2Echo fits the decay of the readout signal against the total
// echo duration (twice the swept idle arm) and extracts T2echo.
func analyseT2Echo(_ context.Context, rc *RunContext) error {
	idle := rc.Data.AxisValues()
	totalSec := make([]float64, len(idle))
	for i, t := range idle {
		totalSec[i] = 2 * t * 1e-9
	}
	if err := rc.Data.AssignCoord("echo_time", "s", totalSec); err != nil {
		return err
	}
	if rc.Params.StateDiscrimination {
		rc.Data.AssignBloch()
	}

	for _, q := range rc.Qubits {
		y, err := rc.Data.QubitSlice(q.Name, echoVariable(rc.Params))
		if err != nil {
			return err
		}

		decay, err := fit.FitExponentialDecay(totalSec, y)
		if err != nil {
			var fitErr apperrors.FitError
			reason := err.Error()
			if errors.As(err, &fitErr) {
				reason = fitErr.Reason
			}
			rc.Outcomes[q.Name] = OutcomeFailed
			rc.Results[q.Name] = &T2EchoResult{FailReason: reason}
			rc.Log.Error("echo fit failed",
				apperrors.NewFitError(q.Name, "%s", reason),
				logging.String("qubit", q.Name))
			continue
		}

		rc.Results[q.Name] = &T2EchoResult{Fit: decay, T2EchoSec: decay.Tau}
		rc.Outcomes[q.Name] = OutcomeSuccessful
		rc.Log.Info("echo fit",
			logging.String("qubit", q.Name),
			logging.Float64("t2_echo_us", decay.Tau*1e6))
	}
	return nil
}

// plotT2Echo renders the per-qubit echo traces with the decay overlay.
func plotT2Echo(_ context.Context, rc *RunContext) error {
	x := rc.Data.AxisValues()
	us := make([]float64, len(x))
	for i := range x {
		us[i] = x[i] * 1e6
	}

	// Bloch traces are already unitless; I is scaled to millivolts.
	yScale, yLabel := 1e3, "I [mV]"
	if rc.Params.StateDiscrimination {
		yScale, yLabel = 1.0, "bloch projection"
	}

	traces := make([]plot.Trace, 0, len(rc.Qubits))
	for _, q := range rc.Qubits {
		y, err := rc.Data.QubitSlice(q.Name, echoVariable(rc.Params))
		if err != nil {
			return err
		}
		scaled := make([]float64, len(y))
		for i := range y {
			scaled[i] = y[i] * yScale
		}
		tr := plot.Trace{Qubit: q.Name, X: us, Y: scaled}
		if res, ok := rc.Results[q.Name].(*T2EchoResult); ok && res.FailReason == "" {
			f, s := res.Fit, yScale
			tr.Fit = func(v float64) float64 { return f.Eval(v*1e-6) * s }
		}
		traces = append(traces, tr)
	}

	path := filepath.Join(runDir(rc.Params, rc.RunID), "t2_echo.png")
	if err := plot.SaveGrid(path, "echo time [us]", yLabel, traces); err != nil {
		return err
	}
	rc.Figures = append(rc.Figures, path)
	return nil
}

// updateT2Echo writes the fitted coherence time into the machine state;
// failed qubits keep their previous value.
func updateT2Echo(_ context.Context, rc *RunContext) error {
	for _, q := range rc.Qubits {
		res, ok := rc.Results[q.Name].(*T2EchoResult)
		if !ok || rc.Outcomes[q.Name] != OutcomeSuccessful {
			continue
		}
		q.T2EchoSec = res.T2EchoSec
	}
	return nil
}
