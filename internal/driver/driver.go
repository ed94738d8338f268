//go:generate mockgen -source=driver.go -destination=mocks/mock_driver.go -package=mocks

// Package driver defines the execution boundary between compiled pulse
// programs and the control system that runs them, together with a simulator
// backend used when no hardware is attached.
package driver

import (
	"context"

	"github.com/qhlab/qcal/internal/progress"
	"github.com/qhlab/qcal/internal/sequence"
)

// Executor submits a compiled pulse program for execution.
// Implementations must validate the program before accepting it.
type Executor interface {
	// Execute starts the program and returns a handle to the running job.
	// The returned job owns the program results; Execute itself returns as
	// soon as the job is admitted.
	Execute(ctx context.Context, prog *sequence.Program) (Job, error)
}

// Job is a handle to a running (or finished) program execution.
type Job interface {
	// Progress returns the channel carrying per-qubit averaging progress.
	// The channel is closed when the job finishes.
	Progress() <-chan progress.ProgressUpdate
	// Result blocks until the job completes and returns the stream buffers.
	// It honors ctx cancellation independently of the job's own context.
	Result(ctx context.Context) (*Result, error)
	// ExecutionReport returns a human-readable summary of the run, exposing
	// possible runtime errors. Valid after Result returns.
	ExecutionReport() string
}

// Result holds the averaged stream buffers of a completed job.
type Result struct {
	// Buffers maps stream name to its averaged buffer, one value per sweep
	// point: raw demodulation units for IQ streams (volts * readout length
	// / 4096, converted back at fetch), mean level index for state streams.
	Buffers map[string][]float64
	// SweepValues echoes the program's sweep axis.
	SweepValues []float64
}

// Buffer returns the named stream buffer or nil when absent.
func (r *Result) Buffer(name string) []float64 {
	return r.Buffers[name]
}
