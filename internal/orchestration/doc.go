// Package orchestration coordinates calibration node runs and aggregates
// their per-qubit outcomes. It decouples run coordination from
// presentation via the ProgressReporter and ResultPresenter interfaces.
package orchestration
