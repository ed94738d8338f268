package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"github.com/qhlab/qcal/internal/format"
	"github.com/qhlab/qcal/internal/progress"
)

const (
	// ProgressRefreshRate defines the refresh frequency of the progress bar.
	ProgressRefreshRate = 200 * time.Millisecond
	// ProgressBarWidth defines the width in characters of the progress bar.
	ProgressBarWidth = 40
)

// Spinner is an interface that abstracts the behavior of a terminal spinner.
// This allows for the decoupling of the `DisplayProgress` function from a
// specific spinner implementation, facilitating easier testing and maintenance.
type Spinner interface {
	// Start begins the spinner animation.
	Start()
	// Stop halts the spinner animation.
	Stop()
	// UpdateSuffix sets the text that is displayed after the spinner.
	UpdateSuffix(suffix string)
}

// realSpinner is a wrapper for the `spinner.Spinner` that implements the
// `Spinner` interface.
type realSpinner struct {
	s *spinner.Spinner
}

// Start begins the spinner animation.
func (rs *realSpinner) Start() {
	rs.s.Start()
}

// Stop halts the spinner animation.
func (rs *realSpinner) Stop() {
	rs.s.Stop()
}

// UpdateSuffix sets the text that is displayed after the spinner.
func (rs *realSpinner) UpdateSuffix(suffix string) {
	rs.s.Suffix = suffix
}

var newSpinner = func(options ...spinner.Option) Spinner {
	// Using the same interval as ProgressRefreshRate to synchronize
	s := spinner.New(spinner.CharSets[11], ProgressRefreshRate, options...)
	return &realSpinner{s}
}

// DisplayProgress renders a spinner with an aggregated progress bar and
// ETA while a calibration run executes. It consumes updates until the
// channel is closed and signals wg when done. With numQubits <= 0 the
// channel is drained without display.
func DisplayProgress(wg *sync.WaitGroup, progressChan <-chan progress.ProgressUpdate, numQubits int, out io.Writer) {
	defer wg.Done()

	if numQubits <= 0 {
		for range progressChan {
		}
		return
	}

	sp := newSpinner(spinner.WithWriter(out))
	sp.Start()
	defer sp.Stop()

	state := format.NewProgressWithETA(numQubits)
	var lastRefresh time.Time

	for update := range progressChan {
		state.UpdateWithETA(update.QubitIndex, update.Value)

		// Throttle suffix updates to the spinner's own refresh rate.
		if time.Since(lastRefresh) < ProgressRefreshRate {
			continue
		}
		lastRefresh = time.Now()

		avg := state.CalculateAverage()
		eta := state.GetETA()
		suffix := fmt.Sprintf(" %s", format.FormatProgressBarWithETA(avg, eta, ProgressBarWidth))
		if update.ShotsTotal > 0 {
			suffix += fmt.Sprintf("  shot %d/%d", update.ShotsDone, update.ShotsTotal)
		}
		sp.UpdateSuffix(suffix)
	}

	sp.UpdateSuffix(fmt.Sprintf(" %s", format.FormatProgressBarWithETA(1.0, 0, ProgressBarWidth)))
}
