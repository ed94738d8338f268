// Package cli provides the command-line presentation layer, including an
// interactive shell for running calibration nodes.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qhlab/qcal/internal/driver"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/orchestration"
	"github.com/qhlab/qcal/internal/quam"
	"github.com/qhlab/qcal/internal/store"
	"github.com/qhlab/qcal/internal/ui"
)

// REPLConfig holds configuration for the interactive shell session.
type REPLConfig struct {
	// Params are the node parameters applied to every run.
	Params nodes.Parameters
	// Timeout bounds a single node run.
	Timeout time.Duration
}

// REPL represents an interactive calibration session driving a machine
// through named nodes.
type REPL struct {
	config   REPLConfig
	machine  *quam.Machine
	executor driver.Executor
	store    *store.Store
	in       io.Reader
	out      io.Writer
}

// NewREPL creates a new interactive session. store may be nil to run
// without snapshot persistence.
func NewREPL(machine *quam.Machine, executor driver.Executor, st *store.Store, config REPLConfig) *REPL {
	return &REPL{
		config:   config,
		machine:  machine,
		executor: executor,
		store:    st,
		in:       os.Stdin,
		out:      os.Stdout,
	}
}

// SetInput sets a custom input reader (useful for testing).
func (r *REPL) SetInput(in io.Reader) {
	r.in = in
}

// SetOutput sets a custom output writer (useful for testing).
func (r *REPL) SetOutput(out io.Writer) {
	r.out = out
}

// Start begins the interactive session. It continuously reads user input
// and processes commands until the user exits or EOF is reached.
func (r *REPL) Start(ctx context.Context) {
	r.printBanner()
	r.printHelp()
	fmt.Fprintln(r.out)

	reader := bufio.NewReader(r.in)

	for {
		fmt.Fprint(r.out, ui.ColorGreen()+"qcal> "+ui.ColorReset())

		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(r.out, "%sRead error: %v%s\n", ui.ColorRed(), err, ui.ColorReset())
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if !r.processCommand(ctx, input) {
			return
		}
	}
}

// printBanner displays the shell welcome banner.
func (r *REPL) printBanner() {
	fmt.Fprintf(r.out, "\n%s╔══════════════════════════════════════════════════════════╗%s\n", ui.ColorCyan(), ui.ColorReset())
	fmt.Fprintf(r.out, "%s║%s      %sQubit Calibration - Interactive Mode%s                 %s║%s\n",
		ui.ColorCyan(), ui.ColorReset(), ui.ColorBold(), ui.ColorReset(), ui.ColorCyan(), ui.ColorReset())
	fmt.Fprintf(r.out, "%s╚══════════════════════════════════════════════════════════╝%s\n\n", ui.ColorCyan(), ui.ColorReset())
}

// printHelp displays available commands.
func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, "%sAvailable commands:%s\n", ui.ColorBold(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %srun <node> [qubits]%s - Run a calibration node (qubits comma-separated)\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %snodes%s               - List available calibration nodes\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %squbits%s              - Show the machine's qubits and key parameters\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sshots <n>%s           - Set the averaging shot count\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %shistory [n]%s         - Show the last n state snapshots\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sstatus%s              - Display current configuration\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %shelp%s                - Display this help\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sexit%s / %squit%s        - Exit interactive mode\n", ui.ColorYellow(), ui.ColorReset(), ui.ColorYellow(), ui.ColorReset())
}

// processCommand parses and executes a user command.
// Returns false if the shell should exit.
func (r *REPL) processCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "run", "r":
		r.cmdRun(ctx, args)
	case "nodes", "ls", "list":
		r.cmdNodes()
	case "qubits":
		r.cmdQubits()
	case "shots":
		r.cmdShots(args)
	case "history", "hist":
		r.cmdHistory(args)
	case "status", "st":
		r.cmdStatus()
	case "help", "h", "?":
		r.printHelp()
	case "exit", "quit", "q":
		fmt.Fprintf(r.out, "%sGoodbye!%s\n", ui.ColorGreen(), ui.ColorReset())
		return false
	default:
		// A bare node name runs that node directly
		if containsName(nodes.List(), cmd) {
			r.cmdRun(ctx, []string{cmd})
		} else {
			fmt.Fprintf(r.out, "%sUnknown command: %s%s\n", ui.ColorRed(), cmd, ui.ColorReset())
			fmt.Fprintf(r.out, "Type %shelp%s to see available commands.\n", ui.ColorYellow(), ui.ColorReset())
		}
	}

	return true
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// cmdRun handles the "run" command.
func (r *REPL) cmdRun(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "%sUsage: run <node> [qubits]%s\n", ui.ColorRed(), ui.ColorReset())
		fmt.Fprintf(r.out, "Available nodes: %s\n", strings.Join(nodes.List(), ", "))
		return
	}

	params := r.config.Params
	params.Timeout = r.config.Timeout
	if len(args) > 1 {
		params.Qubits = splitNames(args[1])
	}

	node, err := nodes.New(args[0], params)
	if err != nil {
		fmt.Fprintf(r.out, "%s%v%s\n", ui.ColorRed(), err, ui.ColorReset())
		return
	}

	fmt.Fprintf(r.out, "Running %s%s%s...\n", ui.ColorCyan(), node.Name, ui.ColorReset())

	rc := &nodes.RunContext{
		Params:   params,
		Machine:  r.machine,
		Executor: r.executor,
		Store:    r.store,
	}

	res := orchestration.RunNode(ctx, node, rc, CLIProgressReporter{}, r.out)
	CLIResultPresenter{}.PresentRunSummary(res, r.out)
}

func splitNames(csv string) []string {
	parts := strings.Split(csv, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// cmdNodes handles the "nodes" command.
func (r *REPL) cmdNodes() {
	fmt.Fprintf(r.out, "\n%sAvailable calibration nodes:%s\n", ui.ColorBold(), ui.ColorReset())
	for _, name := range nodes.List() {
		fmt.Fprintf(r.out, "  %s%-16s%s - %s\n", ui.ColorYellow(), name, ui.ColorReset(), nodes.Describe(name))
	}
	fmt.Fprintln(r.out)
}

// cmdQubits shows the machine's qubits with their key calibrated values.
func (r *REPL) cmdQubits() {
	qubits, err := r.machine.ActiveQubits()
	if err != nil {
		fmt.Fprintf(r.out, "%s%v%s\n", ui.ColorRed(), err, ui.ColorReset())
		return
	}
	fmt.Fprintf(r.out, "\n%sQubits:%s\n", ui.ColorBold(), ui.ColorReset())
	for _, q := range qubits {
		fmt.Fprintf(r.out, "  %s%-6s%s IF=%.1f MHz, anharm=%.1f MHz, T2echo=%.2f us\n",
			ui.ColorYellow(), q.Name, ui.ColorReset(),
			q.XY.IntermediateFrequencyHz/1e6, q.AnharmonicityHz/1e6, q.T2EchoSec*1e6)
		if op, err := q.XY.Operation(nodes.EFOperationName); err == nil {
			fmt.Fprintf(r.out, "         EF_x180 amp %s%.5f%s V\n", ui.ColorCyan(), op.Amplitude, ui.ColorReset())
		}
	}
	fmt.Fprintln(r.out)
}

// cmdShots handles the "shots" command.
func (r *REPL) cmdShots(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "%sUsage: shots <n>%s\n", ui.ColorRed(), ui.ColorReset())
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Fprintf(r.out, "%sInvalid shot count: %s%s\n", ui.ColorRed(), args[0], ui.ColorReset())
		return
	}
	r.config.Params.Shots = n
	fmt.Fprintf(r.out, "Shots set to %s%d%s\n", ui.ColorGreen(), n, ui.ColorReset())
}

// cmdHistory shows recent calibration snapshots from the store.
func (r *REPL) cmdHistory(args []string) {
	if r.store == nil {
		fmt.Fprintf(r.out, "%sNo snapshot store configured.%s\n", ui.ColorYellow(), ui.ColorReset())
		return
	}

	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := r.store.History(limit)
	if err != nil {
		fmt.Fprintf(r.out, "%sHistory error: %v%s\n", ui.ColorRed(), err, ui.ColorReset())
		return
	}

	fmt.Fprintf(r.out, "\n%sState history:%s\n", ui.ColorBold(), ui.ColorReset())
	for _, e := range entries {
		fmt.Fprintf(r.out, "  %s%s%s  %s%-16s%s run %s (%s)\n",
			ui.ColorCyan(), e.CreatedAt.Format(time.RFC3339), ui.ColorReset(),
			ui.ColorYellow(), e.Node, ui.ColorReset(),
			e.RunID, e.Reason)
	}
	fmt.Fprintln(r.out)
}

// cmdStatus displays the current shell configuration.
func (r *REPL) cmdStatus() {
	fmt.Fprintf(r.out, "\n%sCurrent configuration:%s\n", ui.ColorBold(), ui.ColorReset())
	fmt.Fprintf(r.out, "  Shots:     %s%d%s\n", ui.ColorCyan(), r.config.Params.Shots, ui.ColorReset())
	fmt.Fprintf(r.out, "  Timeout:   %s%s%s\n", ui.ColorCyan(), r.config.Timeout, ui.ColorReset())
	fmt.Fprintf(r.out, "  Output:    %s%s%s\n", ui.ColorCyan(), r.config.Params.OutputDir, ui.ColorReset())
	store := "disabled"
	if r.store != nil {
		store = "enabled"
	}
	fmt.Fprintf(r.out, "  Snapshots: %s%s%s\n", ui.ColorCyan(), store, ui.ColorReset())
	fmt.Fprintln(r.out)
}
