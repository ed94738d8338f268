package orchestration

import (
	"time"

	"github.com/qhlab/qcal/internal/format"
	"github.com/qhlab/qcal/internal/progress"
)

// ProgressAggregator manages multi-qubit progress aggregation. It wraps
// format.ProgressWithETA and provides a higher-level API for consuming
// progress updates from a channel. Both CLI and TUI use this to avoid
// duplicating the aggregation setup and update logic.
type ProgressAggregator struct {
	state     *format.ProgressWithETA
	numQubits int
}

// NewProgressAggregator creates a new aggregator for the given number of
// qubits. Returns nil if numQubits <= 0.
func NewProgressAggregator(numQubits int) *ProgressAggregator {
	if numQubits <= 0 {
		return nil
	}
	return &ProgressAggregator{
		state:     format.NewProgressWithETA(numQubits),
		numQubits: numQubits,
	}
}

// AggregatedProgress holds the result of processing a single progress
// update.
type AggregatedProgress struct {
	// QubitIndex is the section index of the qubit that sent the update.
	QubitIndex int
	// Value is the raw progress value from the update (0.0 to 1.0).
	Value float64
	// AverageProgress is the aggregated average across all qubits.
	AverageProgress float64
	// ETA is the estimated time remaining based on the smoothed progress
	// rate.
	ETA time.Duration
}

// Update processes a single progress update and returns the aggregated
// result.
func (a *ProgressAggregator) Update(update progress.ProgressUpdate) AggregatedProgress {
	avgProgress, eta := a.state.UpdateWithETA(update.QubitIndex, update.Value)
	return AggregatedProgress{
		QubitIndex:      update.QubitIndex,
		Value:           update.Value,
		AverageProgress: avgProgress,
		ETA:             eta,
	}
}

// CalculateAverage returns the current average progress without
// updating. Useful for periodic refresh between updates (e.g. CLI
// ticker).
func (a *ProgressAggregator) CalculateAverage() float64 {
	return a.state.CalculateAverage()
}

// GetETA returns the current ETA estimate without updating.
func (a *ProgressAggregator) GetETA() time.Duration {
	return a.state.GetETA()
}

// NumQubits returns the number of qubits being tracked.
func (a *ProgressAggregator) NumQubits() int {
	return a.numQubits
}

// IsMultiQubit returns true if tracking more than one qubit.
func (a *ProgressAggregator) IsMultiQubit() bool {
	return a.numQubits > 1
}

// DrainChannel reads all updates from the channel without processing.
// Use this when numQubits <= 0 and updates should be discarded.
func DrainChannel(progressChan <-chan progress.ProgressUpdate) {
	for range progressChan {
	}
}
