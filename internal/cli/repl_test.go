package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/qhlab/qcal/internal/driver"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/quam"
	"github.com/qhlab/qcal/internal/ui"
)

func testREPL(t *testing.T, input string) (*REPL, *bytes.Buffer) {
	t.Helper()
	ui.InitTheme(true)

	machine := quam.DefaultMachine(1)
	sim := driver.NewSimulator(machine, driver.WithSeed(1))

	params := nodes.DefaultParameters()
	params.OutputDir = t.TempDir()
	params.NoPlot = true

	r := NewREPL(machine, sim, nil, REPLConfig{
		Params:  params,
		Timeout: time.Minute,
	})

	var out bytes.Buffer
	r.SetInput(strings.NewReader(input))
	r.SetOutput(&out)
	return r, &out
}

func TestREPLNodesCommand(t *testing.T) {
	r, out := testREPL(t, "nodes\nexit\n")
	r.Start(context.Background())

	output := out.String()
	for _, node := range nodes.List() {
		if !strings.Contains(output, node) {
			t.Errorf("nodes output should list %q", node)
		}
	}
	if !strings.Contains(output, "Goodbye!") {
		t.Error("exit should print Goodbye!")
	}
}

func TestREPLQubitsCommand(t *testing.T) {
	r, out := testREPL(t, "qubits\nquit\n")
	r.Start(context.Background())

	if !strings.Contains(out.String(), "q1") {
		t.Error("qubits output should list q1")
	}
}

func TestREPLShotsCommand(t *testing.T) {
	r, out := testREPL(t, "shots 250\nstatus\nexit\n")
	r.Start(context.Background())

	output := out.String()
	if !strings.Contains(output, "Shots set to") {
		t.Error("shots command should confirm the new value")
	}
	if !strings.Contains(output, "250") {
		t.Error("status should show the updated shot count")
	}
	if r.config.Params.Shots != 250 {
		t.Errorf("Shots = %d, want 250", r.config.Params.Shots)
	}
}

func TestREPLUnknownCommand(t *testing.T) {
	r, out := testREPL(t, "frobnicate\nexit\n")
	r.Start(context.Background())

	if !strings.Contains(out.String(), "Unknown command") {
		t.Error("unknown command should be reported")
	}
}

func TestREPLHistoryWithoutStore(t *testing.T) {
	r, out := testREPL(t, "history\nexit\n")
	r.Start(context.Background())

	if !strings.Contains(out.String(), "No snapshot store") {
		t.Error("history without a store should say so")
	}
}

func TestREPLEOF(t *testing.T) {
	r, out := testREPL(t, "")
	r.Start(context.Background())

	if !strings.Contains(out.String(), "Goodbye!") {
		t.Error("EOF should end the session cleanly")
	}
}
