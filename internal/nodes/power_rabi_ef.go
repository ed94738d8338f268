package nodes

import (
	"context"
	"errors"
	"path/filepath"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/fit"
	"github.com/qhlab/qcal/internal/logging"
	"github.com/qhlab/qcal/internal/plot"
	"github.com/qhlab/qcal/internal/quam"
	"github.com/qhlab/qcal/internal/sequence"
)

// EFOperationName is the e->f pi pulse this node calibrates.
const EFOperationName = "EF_x180"

// PowerRabiEFName is the registry name of the node.
const PowerRabiEFName = "power_rabi_ef"

func init() {
	Register(PowerRabiEFName,
		"error-amplified power Rabi calibration of the e->f pi pulse amplitude",
		NewPowerRabiEF)
}

// PowerRabiEFResult is the per-qubit analysis outcome of a power Rabi
// run.
type PowerRabiEFResult struct {
	Fit          fit.OscillationFit
	Factor       float64
	NewAmplitude float64
	Clamped      bool
	FailReason   string
}

// NewPowerRabiEF builds the e->f power Rabi node: sweep the amplitude
// prefactor of the e->f pulse after preparing |e>, fit the resulting
// |IQ| oscillation, and update the EF_x180 amplitude from the extracted
// pi-amplitude factor.
func NewPowerRabiEF(p Parameters) (*Node, error) {
	if p.Shots <= 0 {
		return nil, apperrors.NewConfigError("shots must be positive, got %d", p.Shots)
	}
	if p.Operation == "" {
		p.Operation = "x180"
	}
	if _, err := prefactorSweep(p); err != nil {
		return nil, err
	}

	return &Node{
		Name:        PowerRabiEFName,
		Description: Describe(PowerRabiEFName),
		Actions: []Action{
			{Name: "resolve_qubits", Run: resolveQubits},
			{Name: "create_program", Run: powerRabiProgram(p)},
			{Name: "execute", Skip: skipWhenLoading, Run: executeProgram},
			{Name: "load_data", Skip: skipWhenNotLoading, Run: loadResult},
			{Name: "save_result", Skip: skipWhenLoading, Run: saveResult},
			{Name: "fetch", Run: fetchDataset},
			{Name: "analyse", Run: analysePowerRabiEF},
			{Name: "plot", Skip: skipPlot, Run: plotPowerRabiEF},
			{Name: "update_state", Run: updatePowerRabiEF},
			{Name: "save_state", Skip: skipWithoutStore, Run: saveSnapshot(PowerRabiEFName)},
		},
	}, nil
}

// efSweepOperation picks the pulse whose amplitude the sweep scales:
// the already-calibrated EF_x180 when present, otherwise the g->e pulse
// named by the parameters as a starting template.
func efSweepOperation(p Parameters, q *quam.Qubit) (string, *quam.PulseOperation, error) {
	if op, err := q.XY.Operation(EFOperationName); err == nil {
		return EFOperationName, op, nil
	}
	op, err := q.XY.Operation(p.Operation)
	if err != nil {
		return "", nil, err
	}
	return p.Operation, op, nil
}

// powerRabiProgram builds the per-qubit sequence: prepare |e> with the
// g->e pi pulse at the bare intermediate frequency, retune to the e->f
// transition, play the amplitude-swept pulse, and read out with the
// resonator moved by the averaged-gef shift.
func powerRabiProgram(p Parameters) func(context.Context, *RunContext) error {
	return func(_ context.Context, rc *RunContext) error {
		amps, err := prefactorSweep(p)
		if err != nil {
			return err
		}

		b := sequence.NewBuilder().
			WithShots(p.Shots).
			WithSweep("amp_prefactor", "", amps).
			WithThermalization(rc.Machine.ThermalizationTime())

		for _, q := range rc.Qubits {
			opName, _, err := efSweepOperation(p, q)
			if err != nil {
				return err
			}
			xy := sequence.ChannelXY(q.Name)
			b.Qubit(q.Name).
				UpdateFrequency(sequence.ChannelResonator(q.Name),
					q.Resonator.IntermediateFrequencyHz+q.GEFFrequencyShiftHz).
				UpdateFrequency(xy, q.XY.IntermediateFrequencyHz).
				Play(xy, p.Operation).
				UpdateFrequency(xy, q.XY.IntermediateFrequencyHz-q.AnharmonicityHz).
				PlaySwept(xy, opName).
				Align().
				MeasureIQ("readout", "").
				WaitNs(xy, rc.Machine.ThermalizationTime())
		}

		prog, err := b.Build()
		if err != nil {
			return err
		}
		rc.Program = prog
		return nil
	}
}

// analysePowerRabiEF fits the |IQ| oscillation of every qubit and
// derives the corrected e->f pi amplitude.
func analysePowerRabiEF(_ context.Context, rc *RunContext) error {
	if err := rc.Data.AssignIQAbs(""); err != nil {
		return err
	}
	x := rc.Data.AxisValues()

	for _, q := range rc.Qubits {
		y, err := rc.Data.QubitSlice(q.Name, "IQ_abs")
		if err != nil {
			return err
		}

		osc, err := fit.FitOscillation(x, y)
		if err == nil {
			var factor float64
			factor, err = fit.PiAmplitudeFactor(osc.Frequency, osc.Phase)
			if err == nil {
				_, op, opErr := efSweepOperation(rc.Params, q)
				if opErr != nil {
					return opErr
				}
				rc.Results[q.Name] = &PowerRabiEFResult{
					Fit:          osc,
					Factor:       factor,
					NewAmplitude: op.Amplitude * factor,
				}
				rc.Outcomes[q.Name] = OutcomeSuccessful
				rc.Log.Info("power rabi fit",
					logging.String("qubit", q.Name),
					logging.Float64("frequency", osc.Frequency),
					logging.Float64("factor", factor))
				continue
			}
		}

		var fitErr apperrors.FitError
		reason := err.Error()
		if errors.As(err, &fitErr) {
			reason = fitErr.Reason
		}
		rc.Outcomes[q.Name] = OutcomeFailed
		rc.Results[q.Name] = &PowerRabiEFResult{FailReason: reason}
		rc.Log.Error("power rabi fit failed",
			apperrors.NewFitError(q.Name, "%s", reason),
			logging.String("qubit", q.Name))
	}
	return nil
}

// plotPowerRabiEF renders the per-qubit grid of raw |IQ| traces with the
// fitted oscillation overlaid, in millivolts.
func plotPowerRabiEF(_ context.Context, rc *RunContext) error {
	x := rc.Data.AxisValues()
	traces := make([]plot.Trace, 0, len(rc.Qubits))
	for _, q := range rc.Qubits {
		y, err := rc.Data.QubitSlice(q.Name, "IQ_abs")
		if err != nil {
			return err
		}
		mv := make([]float64, len(y))
		for i := range y {
			mv[i] = y[i] * 1e3
		}
		tr := plot.Trace{Qubit: q.Name, X: x, Y: mv}
		if res, ok := rc.Results[q.Name].(*PowerRabiEFResult); ok && res.FailReason == "" {
			f := res.Fit
			tr.Fit = func(v float64) float64 { return f.Eval(v) * 1e3 }
		}
		traces = append(traces, tr)
	}

	path := filepath.Join(runDir(rc.Params, rc.RunID), "power_rabi_ef.png")
	if err := plot.SaveGrid(path, "amplitude prefactor", "|IQ| [mV]", traces); err != nil {
		return err
	}
	rc.Figures = append(rc.Figures, path)
	return nil
}

// updatePowerRabiEF writes the corrected amplitude into the machine
// state, creating EF_x180 from the swept pulse when it does not exist
// yet. The channel ceiling clamps the value and marks the outcome.
func updatePowerRabiEF(_ context.Context, rc *RunContext) error {
	for _, q := range rc.Qubits {
		res, ok := rc.Results[q.Name].(*PowerRabiEFResult)
		if !ok || rc.Outcomes[q.Name] == OutcomeFailed {
			continue
		}
		_, op, err := efSweepOperation(rc.Params, q)
		if err != nil {
			return err
		}
		template := *op
		template.AxisAngleRad = 0

		if q.XY.SetOperationAmplitude(EFOperationName, &template, res.NewAmplitude) {
			res.Clamped = true
			rc.Outcomes[q.Name] = OutcomeClamped
			rc.Log.Info("amplitude clamped to channel ceiling",
				logging.String("qubit", q.Name),
				logging.Float64("requested", res.NewAmplitude),
				logging.Float64("ceiling", q.XY.MaxAmplitude()))
		}
	}
	return nil
}
