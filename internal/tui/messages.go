package tui

import (
	"time"

	"github.com/qhlab/qcal/internal/orchestration"
)

// ProgressMsg carries one aggregated progress update from the run bridge.
type ProgressMsg struct {
	QubitIndex      int
	Value           float64
	AverageProgress float64
	ETA             time.Duration
}

// ProgressDoneMsg signals that the progress channel has been closed.
type ProgressDoneMsg struct{}

// RunSummaryMsg carries the per-qubit outcome summary of a finished run.
type RunSummaryMsg struct {
	Result orchestration.RunResult
}

// RunCompleteMsg signals that the node run has finished, successfully or
// not. Generation guards against stale messages after a rerun.
type RunCompleteMsg struct {
	ExitCode   int
	Generation uint64
}

// ErrorMsg carries a run error to the dashboard.
type ErrorMsg struct {
	Err      error
	Duration time.Duration
}

// TickMsg drives the periodic UI refresh.
type TickMsg time.Time

// SysStatsMsg carries a system resource sample.
type SysStatsMsg struct {
	CPUPercent   float64
	MemPercent   float64
	ProcRSSBytes uint64
}

// ContextCancelledMsg signals that the run context was cancelled.
type ContextCancelledMsg struct {
	Err        error
	Generation uint64
}
