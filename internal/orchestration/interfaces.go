package orchestration

import (
	"io"
	"sync"
	"time"

	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/progress"
)

// RunResult encapsulates the outcome of a single node run. It is the
// shared domain type between the orchestration and presentation layers.
type RunResult struct {
	// Node is the name of the calibration node that ran.
	Node string
	// RunID identifies the run's artifacts and provenance.
	RunID string
	// Outcomes maps qubit name to its per-qubit verdict.
	Outcomes map[string]nodes.Outcome
	// Results maps qubit name to the node-specific analysis result.
	Results map[string]any
	// Figures lists the rendered figure paths.
	Figures []string
	// Duration is the wall-clock time of the run.
	Duration time.Duration
	// Err contains any error that aborted the run.
	Err error
}

// ProgressReporter defines the interface for displaying run progress.
// It decouples the orchestration layer from the presentation layer;
// implementations handle the visual representation (spinner, bar, TUI)
// while orchestration focuses on coordinating the run.
type ProgressReporter interface {
	// DisplayProgress consumes progress updates until the channel is
	// closed. It runs in its own goroutine and signals wg when done.
	DisplayProgress(wg *sync.WaitGroup, progressChan <-chan progress.ProgressUpdate, numQubits int, out io.Writer)
}

// ProgressReporterFunc is a function adapter that implements
// ProgressReporter.
type ProgressReporterFunc func(wg *sync.WaitGroup, progressChan <-chan progress.ProgressUpdate, numQubits int, out io.Writer)

// DisplayProgress calls the underlying function.
func (f ProgressReporterFunc) DisplayProgress(wg *sync.WaitGroup, progressChan <-chan progress.ProgressUpdate, numQubits int, out io.Writer) {
	f(wg, progressChan, numQubits, out)
}

// NullProgressReporter is a no-op implementation of ProgressReporter.
// It drains the progress channel without displaying anything. Useful for
// quiet mode and tests.
type NullProgressReporter struct{}

// DisplayProgress drains the channel without output.
func (NullProgressReporter) DisplayProgress(wg *sync.WaitGroup, progressChan <-chan progress.ProgressUpdate, _ int, _ io.Writer) {
	defer wg.Done()
	for range progressChan {
		// Drain channel silently
	}
}

// ResultPresenter defines the interface for presenting run results,
// allowing different output formats without modifying the orchestration
// logic.
type ResultPresenter interface {
	// PresentRunSummary displays the per-qubit outcome table of a run.
	PresentRunSummary(res RunResult, out io.Writer)
}
