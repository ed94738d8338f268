package cli

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/format"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/orchestration"
	"github.com/qhlab/qcal/internal/progress"
	"github.com/qhlab/qcal/internal/ui"
)

// CLIProgressReporter implements orchestration.ProgressReporter for CLI
// output. It wraps DisplayProgress to provide a spinner and progress bar
// during runs.
type CLIProgressReporter struct{}

// Verify that CLIProgressReporter implements orchestration.ProgressReporter.
var _ orchestration.ProgressReporter = CLIProgressReporter{}

// DisplayProgress displays a spinner and progress bar for the ongoing run.
func (CLIProgressReporter) DisplayProgress(wg *sync.WaitGroup, progressChan <-chan progress.ProgressUpdate, numQubits int, out io.Writer) {
	DisplayProgress(wg, progressChan, numQubits, out)
}

// CLIResultPresenter implements orchestration.ResultPresenter for
// colorized tabular command-line output.
type CLIResultPresenter struct{}

// Verify interface compliance.
var _ orchestration.ResultPresenter = CLIResultPresenter{}

// PresentRunSummary displays the per-qubit outcome table of a run
// followed by the run identity and figure paths.
func (CLIResultPresenter) PresentRunSummary(res orchestration.RunResult, out io.Writer) {
	fmt.Fprintf(out, "\n--- %s ---\n", res.Node)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "%sQUBIT\tOUTCOME\tDETAIL%s\n", ui.ColorUnderline(), ui.ColorReset())
	for _, qubit := range sortedQubits(res.Outcomes) {
		fmt.Fprintf(w, "%s%s%s\t%s\t%s\n",
			ui.ColorBlue(), qubit, ui.ColorReset(),
			colorOutcome(res.Outcomes[qubit]),
			detailLine(res.Results[qubit]))
	}
	w.Flush()

	fmt.Fprintf(out, "\nRun %s%s%s finished in %s%s%s.\n",
		ui.ColorCyan(), res.RunID, ui.ColorReset(),
		ui.ColorYellow(), format.FormatExecutionDuration(res.Duration), ui.ColorReset())
	for _, fig := range res.Figures {
		fmt.Fprintf(out, "Figure: %s%s%s\n", ui.ColorCyan(), fig, ui.ColorReset())
	}
	if res.Err != nil {
		fmt.Fprintf(out, "%sError: %v%s\n", ui.ColorRed(), res.Err, ui.ColorReset())
	}
}

// sortedQubits returns the outcome keys in stable order.
func sortedQubits(outcomes map[string]nodes.Outcome) []string {
	qubits := make([]string, 0, len(outcomes))
	for q := range outcomes {
		qubits = append(qubits, q)
	}
	sort.Strings(qubits)
	return qubits
}

// colorOutcome renders an outcome with the theme color matching its
// severity.
func colorOutcome(o nodes.Outcome) string {
	switch o {
	case nodes.OutcomeSuccessful:
		return fmt.Sprintf("%s%s%s", ui.ColorGreen(), o, ui.ColorReset())
	case nodes.OutcomeClamped:
		return fmt.Sprintf("%s%s%s", ui.ColorYellow(), o, ui.ColorReset())
	default:
		return fmt.Sprintf("%s%s%s", ui.ColorRed(), o, ui.ColorReset())
	}
}

// detailLine summarizes a node-specific result in one line.
func detailLine(result any) string {
	switch r := result.(type) {
	case nodes.PowerRabiEFResult:
		if r.FailReason != "" {
			return r.FailReason
		}
		line := fmt.Sprintf("amp %.5f V (factor %.4f, fit f=%.4g)", r.NewAmplitude, r.Factor, r.Fit.Frequency)
		if r.Clamped {
			line += " [clamped]"
		}
		return line
	case nodes.T2EchoResult:
		if r.FailReason != "" {
			return r.FailReason
		}
		return fmt.Sprintf("T2echo %.2f us (tau fit %.3g s)", r.T2EchoSec*1e6, r.Fit.Tau)
	case nodes.IQBlobsGEFResult:
		if r.FailReason != "" {
			return r.FailReason
		}
		d := r.Discrimination
		fidelity := (d.Fidelity[0][0] + d.Fidelity[1][1]) / 2
		return fmt.Sprintf("angle %.3f rad, threshold %.4g V, fidelity %.2f%%", d.Angle, d.Threshold, fidelity*100)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", r)
	}
}

// HandleRunError prints a run-ending error with severity coloring and
// returns the matching process exit code.
func HandleRunError(err error, out io.Writer) int {
	if err == nil {
		return apperrors.ExitSuccess
	}
	code := apperrors.ClassifyExitCode(err)
	switch code {
	case apperrors.ExitErrorTimeout:
		fmt.Fprintf(out, "%sRun timed out: %v%s\n", ui.ColorYellow(), err, ui.ColorReset())
	case apperrors.ExitErrorCanceled:
		fmt.Fprintf(out, "%sRun canceled.%s\n", ui.ColorYellow(), ui.ColorReset())
	default:
		fmt.Fprintf(out, "%sRun failed: %v%s\n", ui.ColorRed(), err, ui.ColorReset())
	}
	return code
}
