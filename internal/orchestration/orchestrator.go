package orchestration

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/progress"
)

// ProgressBufferMultiplier defines the buffer size multiplier for the
// progress channel. A larger buffer reduces the likelihood of blocking
// the execution goroutines when the UI is slow to consume updates.
const ProgressBufferMultiplier = 5

// tracerName identifies this package's tracer.
const tracerName = "github.com/qhlab/qcal/internal/orchestration"

// RunNode executes one calibration node end to end: it wires the
// progress channel between the driver and the reporter, hangs a tracing
// span on the run and one on each action, and folds the node's outcome
// map into a RunResult.
func RunNode(ctx context.Context, node *nodes.Node, rc *nodes.RunContext, reporter ProgressReporter, out io.Writer) RunResult {
	numQubits := expectedQubits(rc)
	progressChan := make(chan progress.ProgressUpdate, numQubits*ProgressBufferMultiplier)
	rc.Progress = progressChan

	var displayWg sync.WaitGroup
	displayWg.Add(1)
	go reporter.DisplayProgress(&displayWg, progressChan, numQubits, out)

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "node.run",
		trace.WithAttributes(attribute.String("node", node.Name)))
	rc.OnAction = func(action string) func(error) {
		_, actSpan := tracer.Start(ctx, "node.action",
			trace.WithAttributes(
				attribute.String("node", node.Name),
				attribute.String("action", action)))
		return func(err error) {
			if err != nil {
				actSpan.SetStatus(codes.Error, err.Error())
			}
			actSpan.End()
		}
	}

	start := time.Now()
	err := node.Run(ctx, rc)

	close(progressChan)
	displayWg.Wait()

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("run_id", rc.RunID))
	span.End()

	res := RunResult{
		Node:     node.Name,
		RunID:    rc.RunID,
		Outcomes: rc.Outcomes,
		Results:  rc.Results,
		Figures:  rc.Figures,
		Duration: time.Since(start),
		Err:      err,
	}
	if res.Err == nil {
		res.Err = outcomeError(node.Name, rc.Outcomes)
	}
	return res
}

// expectedQubits estimates how many qubits the run will touch, for
// sizing the progress buffer before the machine state is consulted.
func expectedQubits(rc *nodes.RunContext) int {
	if n := len(rc.Params.Qubits); n > 0 {
		return n
	}
	if rc.Machine != nil {
		if n := len(rc.Machine.ActiveQubitNames); n > 0 {
			return n
		}
		if n := len(rc.Machine.Qubits); n > 0 {
			return n
		}
	}
	return 1
}

// outcomeError converts failed per-qubit outcomes into a FitError so the
// run maps to the fit-failure exit code. Clamped outcomes are successes.
func outcomeError(node string, outcomes map[string]nodes.Outcome) error {
	var failed []string
	for q, o := range outcomes {
		if o == nodes.OutcomeFailed {
			failed = append(failed, q)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	sort.Strings(failed)
	return apperrors.NewFitError(strings.Join(failed, ","), "node %s could not fit %d qubit(s)", node, len(failed))
}

// ExitCode maps a run result to the process exit code.
func ExitCode(res RunResult) int {
	return apperrors.ClassifyExitCode(res.Err)
}
