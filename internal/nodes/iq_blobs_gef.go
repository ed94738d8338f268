package nodes

import (
	"context"
	"errors"
	"path/filepath"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/fit"
	"github.com/qhlab/qcal/internal/logging"
	"github.com/qhlab/qcal/internal/plot"
	"github.com/qhlab/qcal/internal/sequence"
)

// IQBlobsGEFName is the registry name of the node.
const IQBlobsGEFName = "iq_blobs_gef"

func init() {
	Register(IQBlobsGEFName,
		"single-shot readout clouds for g, e and f with two-state discrimination",
		NewIQBlobsGEF)
}

// IQBlobsGEFResult is the per-qubit analysis outcome of a blob run.
type IQBlobsGEFResult struct {
	Discrimination fit.Discrimination
	FailReason     string
}

// NewIQBlobsGEF builds the readout-blob node: collect single-shot I/Q
// clouds for the ground, excited and second-excited states, derive the
// readout rotation angle, g/e threshold and assignment fidelity matrix,
// and write them into the resonator state.
func NewIQBlobsGEF(p Parameters) (*Node, error) {
	if p.Shots <= 0 {
		return nil, apperrors.NewConfigError("shots must be positive, got %d", p.Shots)
	}

	return &Node{
		Name:        IQBlobsGEFName,
		Description: Describe(IQBlobsGEFName),
		Actions: []Action{
			{Name: "resolve_qubits", Run: resolveQubits},
			{Name: "create_program", Run: blobsProgram(p)},
			{Name: "execute", Skip: skipWhenLoading, Run: executeProgram},
			{Name: "load_data", Skip: skipWhenNotLoading, Run: loadResult},
			{Name: "save_result", Skip: skipWhenLoading, Run: saveResult},
			{Name: "fetch", Run: fetchDataset},
			{Name: "analyse", Run: analyseIQBlobsGEF},
			{Name: "plot", Skip: skipPlot, Run: plotIQBlobsGEF},
			{Name: "update_state", Run: updateIQBlobsGEF},
			{Name: "save_state", Skip: skipWithoutStore, Run: saveSnapshot(IQBlobsGEFName)},
		},
	}, nil
}

// blobsProgram builds the three-preparation sequence. Single shots are
// needed rather than averages, so the shot index is the sweep axis and
// each point runs once: thermalized ground readout, then x180 and
// readout, then x180 followed by the e->f pulse at the shifted frequency
// and readout.
func blobsProgram(p Parameters) func(context.Context, *RunContext) error {
	return func(_ context.Context, rc *RunContext) error {
		shots := make([]float64, p.Shots)
		for i := range shots {
			shots[i] = float64(i)
		}

		therm := rc.Machine.ThermalizationTime()
		b := sequence.NewBuilder().
			WithShots(1).
			WithSweep("shot", "", shots).
			WithThermalization(therm)

		for _, q := range rc.Qubits {
			efOp := "x180"
			if _, err := q.XY.Operation(EFOperationName); err == nil {
				efOp = EFOperationName
			}
			xy := sequence.ChannelXY(q.Name)
			b.Qubit(q.Name).
				UpdateFrequency(sequence.ChannelResonator(q.Name),
					q.Resonator.IntermediateFrequencyHz+q.GEFFrequencyShiftHz).
				UpdateFrequency(xy, q.XY.IntermediateFrequencyHz).
				WaitNs(xy, therm).
				MeasureIQ("readout", "g").
				WaitNs(xy, therm).
				Play(xy, "x180").
				Align().
				MeasureIQ("readout", "e").
				WaitNs(xy, therm).
				UpdateFrequency(xy, q.XY.IntermediateFrequencyHz).
				Play(xy, "x180").
				UpdateFrequency(xy, q.XY.IntermediateFrequencyHz-q.AnharmonicityHz).
				Play(xy, efOp).
				Align().
				MeasureIQ("readout", "f").
				WaitNs(xy, therm)
		}

		prog, err := b.Build()
		if err != nil {
			return err
		}
		rc.Program = prog
		return nil
	}
}

// analyseIQBlobsGEF runs the two-state discriminator on the g/e clouds
// of every qubit.
func analyseIQBlobsGEF(_ context.Context, rc *RunContext) error {
	for _, q := range rc.Qubits {
		ig, err := rc.Data.QubitSlice(q.Name, "I_g")
		if err != nil {
			return err
		}
		qg, err := rc.Data.QubitSlice(q.Name, "Q_g")
		if err != nil {
			return err
		}
		ie, err := rc.Data.QubitSlice(q.Name, "I_e")
		if err != nil {
			return err
		}
		qe, err := rc.Data.QubitSlice(q.Name, "Q_e")
		if err != nil {
			return err
		}

		disc, err := fit.TwoStateDiscriminator(ig, qg, ie, qe)
		if err != nil {
			var fitErr apperrors.FitError
			reason := err.Error()
			if errors.As(err, &fitErr) {
				reason = fitErr.Reason
			}
			rc.Outcomes[q.Name] = OutcomeFailed
			rc.Results[q.Name] = &IQBlobsGEFResult{FailReason: reason}
			rc.Log.Error("discrimination failed",
				apperrors.NewFitError(q.Name, "%s", reason),
				logging.String("qubit", q.Name))
			continue
		}

		rc.Results[q.Name] = &IQBlobsGEFResult{Discrimination: disc}
		rc.Outcomes[q.Name] = OutcomeSuccessful
		rc.Log.Info("readout discrimination",
			logging.String("qubit", q.Name),
			logging.Float64("angle_rad", disc.Angle),
			logging.Float64("fidelity_gg", disc.Fidelity[0][0]),
			logging.Float64("fidelity_ee", disc.Fidelity[1][1]))
	}
	return nil
}

// plotIQBlobsGEF renders the per-qubit g/e/f clouds.
func plotIQBlobsGEF(_ context.Context, rc *RunContext) error {
	clouds := make([]plot.Clouds, 0, len(rc.Qubits))
	for _, q := range rc.Qubits {
		c := plot.Clouds{Qubit: q.Name, Labels: []string{"G", "E", "F"}}
		for _, label := range []string{"g", "e", "f"} {
			is, err := rc.Data.QubitSlice(q.Name, "I_"+label)
			if err != nil {
				return err
			}
			qs, err := rc.Data.QubitSlice(q.Name, "Q_"+label)
			if err != nil {
				return err
			}
			c.I = append(c.I, is)
			c.Q = append(c.Q, qs)
		}
		clouds = append(clouds, c)
	}

	path := filepath.Join(runDir(rc.Params, rc.RunID), "iq_blobs_gef.png")
	if err := plot.SaveBlobGrid(path, clouds); err != nil {
		return err
	}
	rc.Figures = append(rc.Figures, path)
	return nil
}

// updateIQBlobsGEF writes the discrimination results into the resonator
// state.
func updateIQBlobsGEF(_ context.Context, rc *RunContext) error {
	for _, q := range rc.Qubits {
		res, ok := rc.Results[q.Name].(*IQBlobsGEFResult)
		if !ok || rc.Outcomes[q.Name] != OutcomeSuccessful {
			continue
		}
		q.Resonator.RotationAngleRad = res.Discrimination.Angle
		q.Resonator.GEThreshold = res.Discrimination.Threshold
		q.Resonator.FidelityMatrix = res.Discrimination.Fidelity
	}
	return nil
}
