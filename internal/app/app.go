package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/qhlab/qcal/internal/cli"
	"github.com/qhlab/qcal/internal/config"
	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/ui"
)

// Application represents the qcal application instance.
type Application struct {
	Config    config.AppConfig
	ErrWriter io.Writer
}

// New creates a new Application instance by parsing command-line arguments.
func New(args []string, errWriter io.Writer) (*Application, error) {
	app := &Application{ErrWriter: errWriter}

	programName := "qcal"
	var cmdArgs []string
	if len(args) > 0 {
		programName = args[0]
		cmdArgs = args[1:]
	}

	cfg, err := config.ParseConfig(programName, cmdArgs, errWriter, nodes.List())
	if err != nil {
		return nil, err
	}

	app.Config = config.ApplyAdaptiveDefaults(cfg)
	return app, nil
}

// Run executes the application based on the configured mode.
func (a *Application) Run(ctx context.Context, out io.Writer) int {
	if a.Config.Completion != "" {
		return a.runCompletion(out)
	}

	applyLogLevel(a.Config)
	ui.InitTheme(a.Config.NoColor)
	if ui.GetCurrentTheme().Name != "none" {
		ui.SetTheme(a.Config.Theme)
	}

	switch {
	case a.Config.ListNodes:
		return a.runListNodes(out)
	case a.Config.InitState:
		return a.runInitState(out)
	case a.Config.Interactive:
		return a.runInteractive(ctx, out)
	case a.Config.TUI:
		return a.runTUI(ctx)
	}

	return a.runNode(ctx, out)
}

// runCompletion generates shell completion scripts.
func (a *Application) runCompletion(out io.Writer) int {
	if err := cli.GenerateCompletion(out, a.Config.Completion, nodes.List()); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error generating completion: %v\n", err)
		return apperrors.ExitErrorConfig
	}
	return apperrors.ExitSuccess
}

// runListNodes prints the node registry.
func (a *Application) runListNodes(out io.Writer) int {
	fmt.Fprintln(out, "Available calibration nodes:")
	for _, name := range nodes.List() {
		fmt.Fprintf(out, "  %-16s %s\n", name, nodes.Describe(name))
	}
	return apperrors.ExitSuccess
}

// applyLogLevel maps the configured level onto the global zerolog level.
// Quiet mode silences everything below errors regardless of the level.
func applyLogLevel(cfg config.AppConfig) {
	if cfg.Quiet {
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		return
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// IsHelpError checks if the error is a help flag error (--help was used).
func IsHelpError(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
