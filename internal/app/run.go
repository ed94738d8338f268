package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/qhlab/qcal/internal/cli"
	"github.com/qhlab/qcal/internal/driver"
	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/logging"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/orchestration"
	"github.com/qhlab/qcal/internal/quam"
	"github.com/qhlab/qcal/internal/server"
	"github.com/qhlab/qcal/internal/store"
	"github.com/qhlab/qcal/internal/tui"
	"github.com/qhlab/qcal/internal/ui"
)

// defaultStateFile is where --init-state writes when no --state is given.
const defaultStateFile = "quam_state.json"

// runSetup bundles the resolved run dependencies.
type runSetup struct {
	machine  *quam.Machine
	executor driver.Executor
	store    *store.Store
	params   nodes.Parameters
}

// close releases the setup's resources.
func (s *runSetup) close() {
	if s.store != nil {
		s.store.Close()
	}
}

// buildRun resolves the machine state, backend and snapshot store from
// the configuration. The machine comes from the state file when given,
// otherwise from the store's active snapshot, otherwise from defaults.
func (a *Application) buildRun() (*runSetup, error) {
	s := &runSetup{}

	if a.Config.StorePath != "" {
		st, err := store.Open(a.Config.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open store %s: %w", a.Config.StorePath, err)
		}
		s.store = st
	}

	switch {
	case a.Config.StateFile != "":
		m, err := quam.Load(a.Config.StateFile)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("load state %s: %w", a.Config.StateFile, err)
		}
		s.machine = m
	case s.store != nil:
		if snap, err := s.store.ActiveSnapshot(); err == nil {
			s.machine = snap.Machine
		}
	}
	if s.machine == nil {
		s.machine = quam.DefaultMachine(a.Config.NumQubits)
	}

	if !a.Config.Simulate {
		s.close()
		return nil, apperrors.NewConfigError("no hardware backend configured; rerun with --simulate")
	}
	var opts []driver.SimOption
	if a.Config.Seed != 0 {
		opts = append(opts, driver.WithSeed(a.Config.Seed))
	}
	if a.Config.NoiseSigma > 0 {
		opts = append(opts, driver.WithNoiseSigma(a.Config.NoiseSigma))
	}
	s.executor = driver.NewSimulator(s.machine, opts...)

	s.params = a.parameters()
	return s, nil
}

// parameters maps the CLI configuration onto node parameters.
func (a *Application) parameters() nodes.Parameters {
	p := nodes.DefaultParameters()
	p.Qubits = a.Config.QubitList()
	p.Shots = a.Config.Shots
	p.MinAmpFactor = a.Config.MinAmpFactor
	p.MaxAmpFactor = a.Config.MaxAmpFactor
	p.AmpFactorStep = a.Config.AmpFactorStep
	p.MinWaitNs = a.Config.MinWaitNs
	p.MaxWaitNs = a.Config.MaxWaitNs
	p.WaitPoints = a.Config.WaitPoints
	p.LogSpacing = a.Config.LogSpacing
	p.StateDiscrimination = a.Config.StateDiscrimination
	p.Timeout = a.Config.Timeout
	p.LoadDataID = a.Config.LoadDataID
	p.OutputDir = a.Config.OutputDir
	p.NoPlot = a.Config.NoPlot
	return p
}

// runInitState writes a fresh default machine state file.
func (a *Application) runInitState(out io.Writer) int {
	path := a.Config.StateFile
	if path == "" {
		path = defaultStateFile
	}
	m := quam.DefaultMachine(a.Config.NumQubits)
	if err := m.Save(path); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error writing state: %v\n", err)
		return apperrors.ExitErrorGeneric
	}
	fmt.Fprintf(out, "Wrote default machine state (%d qubits) to %s\n", a.Config.NumQubits, path)
	return apperrors.ExitSuccess
}

// runInteractive starts the calibration shell.
func (a *Application) runInteractive(ctx context.Context, out io.Writer) int {
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	setup, err := a.buildRun()
	if err != nil {
		return cli.HandleRunError(err, a.ErrWriter)
	}
	defer setup.close()

	repl := cli.NewREPL(setup.machine, setup.executor, setup.store, cli.REPLConfig{
		Params:  setup.params,
		Timeout: a.Config.Timeout,
	})
	repl.SetOutput(out)
	repl.Start(ctx)
	return apperrors.ExitSuccess
}

// runTUI launches the interactive dashboard for one node run.
func (a *Application) runTUI(ctx context.Context) int {
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	node, err := nodes.New(a.Config.Node, a.parameters())
	if err != nil {
		return cli.HandleRunError(err, a.ErrWriter)
	}

	setup, err := a.buildRun()
	if err != nil {
		return cli.HandleRunError(err, a.ErrWriter)
	}
	defer setup.close()

	rc := &nodes.RunContext{
		Params:   setup.params,
		Machine:  setup.machine,
		Executor: setup.executor,
		Store:    setup.store,
		Log:      logging.NopLogger{},
	}
	return tui.Run(ctx, node, rc, a.Config, Version)
}

// runNode executes one calibration node in CLI mode.
func (a *Application) runNode(ctx context.Context, out io.Writer) int {
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	node, err := nodes.New(a.Config.Node, a.parameters())
	if err != nil {
		return cli.HandleRunError(err, a.ErrWriter)
	}

	setup, err := a.buildRun()
	if err != nil {
		return cli.HandleRunError(err, a.ErrWriter)
	}
	defer setup.close()

	logger := logging.NewLogger(a.ErrWriter, "qcal")

	// Optional Prometheus endpoint alongside the run.
	var srv *server.Server
	group, groupCtx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(groupCtx)
	defer stopServer()
	if a.Config.MetricsListen != "" {
		srv = server.New(a.Config.MetricsListen, logger)
		group.Go(func() error {
			return srv.ListenAndServe(serverCtx)
		})
	}

	if !a.Config.Quiet {
		cli.PrintExecutionConfig(a.Config, out)
	}

	var reporter orchestration.ProgressReporter
	progressOut := out
	if a.Config.Quiet {
		progressOut = io.Discard
		reporter = orchestration.NullProgressReporter{}
	} else {
		reporter = cli.CLIProgressReporter{}
	}

	// The run mutates a clone; the updated state is committed to the
	// state file only when the run succeeds.
	rc := &nodes.RunContext{
		Params:   setup.params,
		Machine:  setup.machine.Clone(),
		Executor: setup.executor,
		Store:    setup.store,
		Log:      logger,
	}
	res := orchestration.RunNode(groupCtx, node, rc, reporter, progressOut)

	if srv != nil {
		for _, outcome := range res.Outcomes {
			srv.Metrics().RecordRun(res.Node, string(outcome))
			if outcome == nodes.OutcomeFailed {
				srv.Metrics().RecordFitFailure()
			}
		}
	}
	stopServer()
	if err := group.Wait(); err != nil {
		logger.Error("metrics server stopped", err)
	}

	return a.presentRun(res, rc.Machine, out)
}

// presentRun writes the run summary, persists the updated state and maps
// the result to the process exit code.
func (a *Application) presentRun(res orchestration.RunResult, machine *quam.Machine, out io.Writer) int {
	outputCfg := cli.OutputConfig{
		OutputFile: a.Config.OutputFile,
		Quiet:      a.Config.Quiet,
		Verbose:    a.Config.Verbose,
	}
	if err := cli.DisplayRunSummaryWithConfig(out, res, outputCfg); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error saving summary: %v\n", err)
		return apperrors.ExitErrorGeneric
	}

	exitCode := orchestration.ExitCode(res)

	// Write the updated machine parameters back to the state file so the
	// next run starts from the calibrated values.
	if a.Config.StateFile != "" && exitCode == apperrors.ExitSuccess && machine != nil {
		if err := machine.Save(a.Config.StateFile); err != nil {
			fmt.Fprintf(a.ErrWriter, "Error saving state: %v\n", err)
			return apperrors.ExitErrorGeneric
		}
		if !a.Config.Quiet {
			fmt.Fprintf(out, "%s✓ State updated: %s%s\n",
				ui.ColorGreen(), a.Config.StateFile, ui.ColorReset())
		}
	}

	if res.Err != nil {
		return cli.HandleRunError(res.Err, a.ErrWriter)
	}
	return exitCode
}
