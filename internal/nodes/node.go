// Package nodes implements the calibration nodes and the run-action
// framework they share. A node is an ordered list of actions (create
// program, execute, fetch, analyse, plot, update state, save); each
// action can be skipped based on the run context, so the same node
// definition covers live runs and offline re-analysis of stored data.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qhlab/qcal/internal/dataset"
	"github.com/qhlab/qcal/internal/driver"
	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/logging"
	"github.com/qhlab/qcal/internal/progress"
	"github.com/qhlab/qcal/internal/quam"
	"github.com/qhlab/qcal/internal/sequence"
	"github.com/qhlab/qcal/internal/store"
)

// Outcome is the per-qubit verdict of a node run.
type Outcome string

const (
	OutcomeSuccessful Outcome = "successful"
	OutcomeFailed     Outcome = "failed"
	// OutcomeClamped marks a successful fit whose updated value had to be
	// clamped to the channel's drive ceiling.
	OutcomeClamped Outcome = "clamped"
)

// Parameters configures a node run. Each node validates the subset of
// fields it uses.
type Parameters struct {
	// Qubits restricts the run to these qubits; empty means the active
	// set of the machine state.
	Qubits []string
	// Shots is the averaging count per sweep point.
	Shots int

	// Operation is the pulse whose amplitude is swept (power Rabi).
	Operation string
	// MinAmpFactor, MaxAmpFactor and AmpFactorStep define the amplitude
	// prefactor sweep; MaxAmpFactor is exclusive.
	MinAmpFactor  float64
	MaxAmpFactor  float64
	AmpFactorStep float64

	// MinWaitNs, MaxWaitNs and WaitPoints define the idle-time sweep
	// (echo). LogSpacing switches to logarithmic spacing.
	MinWaitNs  int
	MaxWaitNs  int
	WaitPoints int
	LogSpacing bool
	// StateDiscrimination measures thresholded qubit states instead of
	// raw I/Q and fits the bloch projection (echo).
	StateDiscrimination bool

	// Timeout bounds a single node run; zero means no bound.
	Timeout time.Duration
	// LoadDataID re-analyses the stored result of a previous run instead
	// of executing.
	LoadDataID string
	// OutputDir is where run artifacts (results, figures) are written.
	OutputDir string
	// NoPlot skips figure rendering.
	NoPlot bool
}

// DefaultParameters returns the baseline parameters the CLI starts from.
func DefaultParameters() Parameters {
	return Parameters{
		Shots:         100,
		Operation:     "x180",
		MinAmpFactor:  0.0,
		MaxAmpFactor:  1.5,
		AmpFactorStep: 0.005,
		MinWaitNs:     16,
		MaxWaitNs:     120_000,
		WaitPoints:    40,
		LogSpacing:    true,
		OutputDir:     "qcal-runs",
	}
}

// RunContext carries the shared state of one node run through its
// actions.
type RunContext struct {
	Params   Parameters
	Machine  *quam.Machine
	Executor driver.Executor
	// Store may be nil; the save action is skipped without one.
	Store *store.Store
	Log   logging.Logger
	// Progress, when non-nil, receives execution progress updates.
	Progress chan<- progress.ProgressUpdate
	// OnAction, when non-nil, is called before each action runs; the
	// returned function is called with the action's error when it
	// finishes. Used to hang tracing spans on the run.
	OnAction func(action string) func(error)

	// RunID identifies this run; generated when empty.
	RunID string

	// Populated by the actions as the run advances.
	Qubits   []*quam.Qubit
	Program  *sequence.Program
	Result   *driver.Result
	Data     *dataset.Dataset
	Outcomes map[string]Outcome
	Results  map[string]any
	Figures  []string
}

// OutcomeStrings converts the outcome map to the provenance form.
func (rc *RunContext) OutcomeStrings() map[string]string {
	out := make(map[string]string, len(rc.Outcomes))
	for q, o := range rc.Outcomes {
		out[q] = string(o)
	}
	return out
}

// Action is one step of a node run. Skip, when non-nil and true for the
// current context, elides the step entirely.
type Action struct {
	Name string
	Skip func(rc *RunContext) bool
	Run  func(ctx context.Context, rc *RunContext) error
}

// Node is a named, ordered list of run actions.
type Node struct {
	Name        string
	Description string
	Actions     []Action
}

// Run executes the node's actions in order, honoring skip conditions and
// context cancellation. The node's Timeout parameter, when set, bounds
// the whole run.
func (n *Node) Run(ctx context.Context, rc *RunContext) error {
	if rc.Log == nil {
		rc.Log = logging.NopLogger{}
	}
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}
	if rc.Outcomes == nil {
		rc.Outcomes = make(map[string]Outcome)
	}
	if rc.Results == nil {
		rc.Results = make(map[string]any)
	}

	if rc.Params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.Params.Timeout)
		defer cancel()
	}

	rc.Log.Info("starting node run",
		logging.String("node", n.Name),
		logging.String("run_id", rc.RunID))

	for _, act := range n.Actions {
		if act.Skip != nil && act.Skip(rc) {
			rc.Log.Debug("skipping action",
				logging.String("node", n.Name),
				logging.String("action", act.Name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return runError(n.Name, act.Name, rc.Params.Timeout, ctx, err)
		}
		start := time.Now()
		finish := func(error) {}
		if rc.OnAction != nil {
			finish = rc.OnAction(act.Name)
		}
		if err := act.Run(ctx, rc); err != nil {
			finish(err)
			return runError(n.Name, act.Name, rc.Params.Timeout, ctx, err)
		}
		finish(nil)
		rc.Log.Debug("action finished",
			logging.String("node", n.Name),
			logging.String("action", act.Name),
			logging.String("elapsed", time.Since(start).Round(time.Millisecond).String()))
	}
	return nil
}

// runError classifies an action failure, promoting context deadline hits
// to timeout errors so they map to the right exit code.
func runError(node, action string, limit time.Duration, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.TimeoutError{Operation: node + "/" + action, Limit: limit}
	}
	if apperrors.IsContextError(err) {
		return err
	}
	var fitErr apperrors.FitError
	if errors.As(err, &fitErr) {
		return err
	}
	return apperrors.ExecutionError{
		Cause: fmt.Errorf("node %s: action %s: %w", node, action, err),
	}
}

// resolveQubits fills rc.Qubits from the parameters, or from the
// machine's active set when no explicit list is given.
func resolveQubits(_ context.Context, rc *RunContext) error {
	var (
		qs  []*quam.Qubit
		err error
	)
	if len(rc.Params.Qubits) > 0 {
		qs, err = rc.Machine.QubitsByName(rc.Params.Qubits)
	} else {
		qs, err = rc.Machine.ActiveQubits()
	}
	if err != nil {
		return err
	}
	for _, q := range qs {
		q.EnsureGEFShift()
	}
	rc.Qubits = qs
	return nil
}

// executeProgram runs the program on the executor, forwarding progress
// updates, and stores the raw result.
func executeProgram(ctx context.Context, rc *RunContext) error {
	job, err := rc.Executor.Execute(ctx, rc.Program)
	if err != nil {
		return err
	}
	for u := range job.Progress() {
		if rc.Progress != nil {
			select {
			case rc.Progress <- u:
			default:
				// A slow reporter never stalls execution.
			}
		}
	}
	res, err := job.Result(ctx)
	if err != nil {
		return err
	}
	rc.Result = res
	rc.Log.Debug("execution finished", logging.String("report", job.ExecutionReport()))
	return nil
}

// fetchDataset assembles the named-axis dataset from the raw result and
// converts the demodulated I/Q buffers to volts. All resonators of a
// machine share the readout window, so one length covers the dataset.
func fetchDataset(_ context.Context, rc *RunContext) error {
	d, err := dataset.FromResult(rc.Program, rc.Result)
	if err != nil {
		return err
	}
	if len(rc.Qubits) > 0 {
		if length := rc.Qubits[0].Resonator.ReadoutLengthNs; length > 0 {
			if err := d.ConvertIQToV(float64(length)); err != nil {
				return err
			}
		}
	}
	rc.Data = d
	return nil
}

// skipWhenLoading elides hardware-touching actions during re-analysis.
func skipWhenLoading(rc *RunContext) bool {
	return rc.Params.LoadDataID != ""
}

// skipWhenNotLoading elides the load action during live runs.
func skipWhenNotLoading(rc *RunContext) bool {
	return rc.Params.LoadDataID == ""
}

// skipPlot honors the NoPlot parameter.
func skipPlot(rc *RunContext) bool {
	return rc.Params.NoPlot
}

// skipWithoutStore elides persistence when no store is attached.
func skipWithoutStore(rc *RunContext) bool {
	return rc.Store == nil
}

// saveSnapshot persists the (possibly updated) machine state with this
// run's provenance.
func saveSnapshot(nodeName string) func(context.Context, *RunContext) error {
	return func(_ context.Context, rc *RunContext) error {
		snap, err := rc.Store.SaveSnapshot(rc.Machine, store.Provenance{
			Node:     nodeName,
			RunID:    rc.RunID,
			Outcomes: rc.OutcomeStrings(),
		})
		if err != nil {
			return err
		}
		rc.Log.Info("saved state snapshot",
			logging.String("version", snap.VersionID),
			logging.String("run_id", rc.RunID))
		return nil
	}
}

// prefactorSweep expands the amplitude prefactor bounds into sweep
// values; the upper bound is exclusive, matching the step convention of
// the sweep parameters.
func prefactorSweep(p Parameters) ([]float64, error) {
	if p.AmpFactorStep <= 0 {
		return nil, apperrors.NewConfigError("amplitude step must be positive, got %g", p.AmpFactorStep)
	}
	if p.MaxAmpFactor <= p.MinAmpFactor {
		return nil, apperrors.NewConfigError("amplitude sweep is empty: [%g, %g)", p.MinAmpFactor, p.MaxAmpFactor)
	}
	var vals []float64
	for v := p.MinAmpFactor; v < p.MaxAmpFactor; v += p.AmpFactorStep {
		vals = append(vals, v)
	}
	return vals, nil
}
