// # Naming Conventions
//
// Functions in this package follow consistent naming patterns based on their behavior:
//
//   - Display* functions write formatted output to an [io.Writer].
//     They handle presentation logic and colorization.
//     Examples: [DisplayRunSummaryWithConfig], [DisplayQuietResult], [DisplayProgress].
//
//   - Format* functions return a formatted string without performing I/O.
//     They are pure functions suitable for composition.
//     Examples: [FormatQuietResult].
//
//   - Write* functions write data to files on the filesystem.
//     They handle file creation, directory setup, and error handling.
//     Examples: [WriteRunSummaryToFile].

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/qhlab/qcal/internal/config"
	"github.com/qhlab/qcal/internal/orchestration"
	"github.com/qhlab/qcal/internal/ui"
)

// OutputConfig holds configuration for result output.
type OutputConfig struct {
	// OutputFile is the path to save the run summary (empty for no file output).
	OutputFile string
	// Quiet mode suppresses everything but the per-qubit outcomes.
	Quiet bool
	// Verbose includes the full per-qubit result details.
	Verbose bool
}

// WriteRunSummaryToFile writes a plain-text run summary to a file,
// creating parent directories as needed.
func WriteRunSummaryToFile(res orchestration.RunResult, config OutputConfig) error {
	if config.OutputFile == "" {
		return nil
	}

	dir := filepath.Dir(config.OutputFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(config.OutputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "# Calibration Run Summary\n")
	fmt.Fprintf(file, "# Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(file, "# Node: %s\n", res.Node)
	fmt.Fprintf(file, "# Run ID: %s\n", res.RunID)
	fmt.Fprintf(file, "# Duration: %s\n", res.Duration)
	fmt.Fprintf(file, "\n")

	for _, qubit := range sortedQubits(res.Outcomes) {
		fmt.Fprintf(file, "%s: %s", qubit, res.Outcomes[qubit])
		if detail := detailLine(res.Results[qubit]); detail != "" {
			fmt.Fprintf(file, " (%s)", detail)
		}
		fmt.Fprintln(file)
	}
	for _, fig := range res.Figures {
		fmt.Fprintf(file, "figure: %s\n", fig)
	}

	return nil
}

// FormatQuietResult formats one qubit outcome for quiet mode output.
// Returns a single line suitable for scripting.
func FormatQuietResult(qubit string, res orchestration.RunResult) string {
	return fmt.Sprintf("%s=%s", qubit, res.Outcomes[qubit])
}

// DisplayQuietResult outputs a run result in quiet mode, one
// "qubit=outcome" line per qubit.
func DisplayQuietResult(out io.Writer, res orchestration.RunResult) {
	for _, qubit := range sortedQubits(res.Outcomes) {
		fmt.Fprintln(out, FormatQuietResult(qubit, res))
	}
}

// DisplayRunSummaryWithConfig displays a run result with the given output
// configuration. This is a unified function that handles all output modes.
func DisplayRunSummaryWithConfig(out io.Writer, res orchestration.RunResult, config OutputConfig) error {
	if config.Quiet {
		DisplayQuietResult(out, res)
	} else {
		CLIResultPresenter{}.PresentRunSummary(res, out)
	}

	if config.OutputFile != "" {
		if err := WriteRunSummaryToFile(res, config); err != nil {
			return err
		}
		if !config.Quiet {
			fmt.Fprintf(out, "\n%s✓ Summary saved to: %s%s%s\n",
				ui.ColorGreen(), ui.ColorCyan(), config.OutputFile, ui.ColorReset())
		}
	}

	return nil
}

// PrintExecutionConfig displays the run configuration before execution:
// target node, qubit selection, timeout and backend.
func PrintExecutionConfig(cfg config.AppConfig, out io.Writer) {
	fmt.Fprintf(out, "--- Execution Configuration ---\n")
	fmt.Fprintf(out, "Running node %s%s%s with a timeout of %s%s%s.\n",
		ui.ColorMagenta(), cfg.Node, ui.ColorReset(), ui.ColorYellow(), cfg.Timeout, ui.ColorReset())
	qubits := "all active qubits"
	if cfg.Qubits != "" {
		qubits = cfg.Qubits
	}
	backend := "hardware"
	if cfg.Simulate {
		backend = "simulator"
	}
	fmt.Fprintf(out, "Qubits: %s%s%s, backend: %s%s%s, shots: %s%d%s.\n",
		ui.ColorCyan(), qubits, ui.ColorReset(),
		ui.ColorCyan(), backend, ui.ColorReset(),
		ui.ColorCyan(), cfg.Shots, ui.ColorReset())
	fmt.Fprintf(out, "Environment: %s%d%s logical processors, Go %s%s%s.\n",
		ui.ColorCyan(), runtime.NumCPU(), ui.ColorReset(), ui.ColorCyan(), runtime.Version(), ui.ColorReset())
	fmt.Fprintf(out, "\n--- Starting Execution ---\n")
}
