// Package progress defines the progress update type shared by drivers,
// orchestration and the presentation layers.
package progress

// ProgressUpdate reports per-qubit averaging progress during a run.
type ProgressUpdate struct {
	// QubitIndex identifies the qubit section (0-based) the update refers to.
	QubitIndex int
	// Value is the normalized progress (0.0 to 1.0).
	Value float64
	// ShotsDone is the number of completed averaging shots.
	ShotsDone int
	// ShotsTotal is the total number of averaging shots.
	ShotsTotal int
}
