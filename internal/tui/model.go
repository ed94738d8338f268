package tui

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qhlab/qcal/internal/config"
	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/orchestration"
	"github.com/qhlab/qcal/internal/sysmon"
)

// ExecutionState holds the execution-related fields of a TUI session.
type ExecutionState struct {
	ctx        context.Context
	cancel     context.CancelFunc
	node       *nodes.Node
	base       *nodes.RunContext
	generation uint64
	done       bool
	exitCode   int
}

// LayoutManager holds terminal dimensions and provides layout calculations.
type LayoutManager struct {
	width  int
	height int
}

// bodyHeight returns the available height for the main body panels.
func (l LayoutManager) bodyHeight() int {
	h := l.height - headerHeight - footerHeight
	if h < minBodyHeight {
		h = minBodyHeight
	}
	return h
}

// logsWidth returns the width allocated to the logs panel.
func (l LayoutManager) logsWidth() int {
	return l.width * LogsPanelWidthPercent / 100
}

// chartWidth returns the width allocated to the chart panel.
func (l LayoutManager) chartWidth() int {
	return l.width - l.logsWidth()
}

// Model is the root bubbletea model for the TUI dashboard.
type Model struct {
	header HeaderModel
	logs   LogsModel
	chart  ChartModel
	footer FooterModel

	keymap KeyMap

	ExecutionState
	LayoutManager

	parentCtx context.Context
	config    config.AppConfig
	ref       *programRef
	paused    bool
}

// NewModel creates a new TUI model for one node run.
func NewModel(parentCtx context.Context, node *nodes.Node, rc *nodes.RunContext, cfg config.AppConfig, version string) Model {
	ctx, cancel := context.WithCancel(parentCtx)

	logs := NewLogsModel(displayQubits(rc))
	logs.AddExecutionConfig(cfg)

	return Model{
		header: NewHeaderModel(version),
		logs:   logs,
		chart:  NewChartModel(),
		footer: NewFooterModel(),
		keymap: DefaultKeyMap(),
		ExecutionState: ExecutionState{
			ctx:      ctx,
			cancel:   cancel,
			node:     node,
			base:     rc,
			exitCode: apperrors.ExitSuccess,
		},
		parentCtx: parentCtx,
		config:    cfg,
		ref:       &programRef{},
	}
}

// displayQubits returns the qubit names the run will touch, for the
// progress panel.
func displayQubits(rc *nodes.RunContext) []string {
	if len(rc.Params.Qubits) > 0 {
		return rc.Params.Qubits
	}
	if rc.Machine != nil {
		if len(rc.Machine.ActiveQubitNames) > 0 {
			return rc.Machine.ActiveQubitNames
		}
		names := make([]string, 0, len(rc.Machine.Qubits))
		for name := range rc.Machine.Qubits {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
	return nil
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		startRunCmd(m.ref, m.ctx, m.node, m.base, m.generation),
		watchContextCmd(m.ctx, m.generation),
	)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()
		return m, nil

	case ProgressMsg:
		if !m.paused {
			m.logs.AddProgressEntry(msg)
			m.chart.AddDataPoint(msg.Value, msg.AverageProgress, msg.ETA)
		}
		return m, nil

	case ProgressDoneMsg:
		return m, nil

	case RunSummaryMsg:
		m.logs.AddRunSummary(msg)
		return m, nil

	case ErrorMsg:
		m.logs.AddError(msg)
		m.footer.SetError(true)
		m.done = true
		m.header.SetDone()
		m.footer.SetDone(true)
		return m, nil

	case TickMsg:
		if m.done {
			return m, nil
		}
		if !m.paused {
			return m, tea.Batch(sampleSysStatsCmd(), tickCmd())
		}
		return m, tickCmd()

	case SysStatsMsg:
		m.chart.UpdateSysStats(msg.CPUPercent, msg.MemPercent)
		return m, nil

	case RunCompleteMsg:
		if msg.Generation != m.generation {
			return m, nil // stale message from a previous run
		}
		m.done = true
		m.exitCode = msg.ExitCode
		m.header.SetDone()
		m.chart.SetDone(time.Since(m.header.startTime))
		m.footer.SetDone(true)
		m.footer.SetError(msg.ExitCode != apperrors.ExitSuccess)
		return m, nil

	case ContextCancelledMsg:
		if msg.Generation != m.generation {
			return m, nil // stale message from a previous run
		}
		m.done = true
		m.header.SetDone()
		m.footer.SetDone(true)
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Pause):
		m.paused = !m.paused
		m.footer.SetPaused(m.paused)
		return m, nil

	case key.Matches(msg, m.keymap.Reset):
		if m.cancel != nil {
			m.cancel()
		}

		m.generation++
		ctx, cancel := context.WithCancel(m.parentCtx)
		m.ctx = ctx
		m.cancel = cancel

		m.header.Reset()
		m.logs.Reset()
		m.logs.AddExecutionConfig(m.config)
		m.chart.Reset()
		m.footer.SetDone(false)
		m.footer.SetError(false)
		m.footer.SetPaused(false)
		m.done = false
		m.paused = false
		m.exitCode = apperrors.ExitSuccess

		return m, tea.Batch(
			tickCmd(),
			startRunCmd(m.ref, m.ctx, m.node, m.base, m.generation),
			watchContextCmd(m.ctx, m.generation),
		)

	case key.Matches(msg, m.keymap.Up), key.Matches(msg, m.keymap.Down),
		key.Matches(msg, m.keymap.PageUp), key.Matches(msg, m.keymap.PageDown):
		m.logs.Update(msg)
		return m, nil
	}

	return m, nil
}

// View renders the entire dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := m.header.View()
	footer := m.footer.View()

	chart := m.chart.View()
	logs := m.logs.renderToHeight(lipgloss.Height(chart))

	body := lipgloss.JoinHorizontal(lipgloss.Top, logs, chart)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// Layout constants for the TUI dashboard.
const (
	headerHeight          = 1
	footerHeight          = 1
	minBodyHeight         = 4
	LogsPanelWidthPercent = 60
)

func (m *Model) layoutPanels() {
	m.header.SetWidth(m.width)
	m.footer.SetWidth(m.width)
	m.logs.SetSize(m.logsWidth(), m.bodyHeight())
	m.chart.SetSize(m.chartWidth(), m.bodyHeight())
}

// Run is the public entry point for the TUI mode.
// It creates the bubbletea program, runs it, and returns the exit code.
func Run(ctx context.Context, node *nodes.Node, rc *nodes.RunContext, cfg config.AppConfig, version string) int {
	// Rebuild styles from the current ui theme (set by app.Run via InitTheme).
	initTUIStyles()

	model := NewModel(ctx, node, rc, cfg, version)
	defer model.cancel()

	p := tea.NewProgram(model, tea.WithAltScreen())
	// Inject the program reference before running so bridge goroutines can Send.
	model.ref.SetProgram(p)

	finalModel, err := p.Run()
	if err != nil {
		return apperrors.ExitErrorGeneric
	}

	if m, ok := finalModel.(Model); ok {
		m.cancel()
		return m.exitCode
	}
	return apperrors.ExitSuccess
}

// startRunCmd returns a tea.Cmd that launches the node run through the
// orchestration layer, forwarding progress and results to the program.
func startRunCmd(ref *programRef, ctx context.Context, node *nodes.Node, base *nodes.RunContext, gen uint64) tea.Cmd {
	return func() tea.Msg {
		reporter := &TUIProgressReporter{ref: ref}
		presenter := &TUIResultPresenter{ref: ref}

		// Each run gets a fresh context and a cloned machine so reruns
		// start from the same state and do not reuse the previous run's
		// identity or populated results.
		rc := &nodes.RunContext{
			Params:   base.Params,
			Machine:  base.Machine.Clone(),
			Executor: base.Executor,
			Store:    base.Store,
			Log:      base.Log,
		}

		res := orchestration.RunNode(ctx, node, rc, reporter, io.Discard)
		presenter.PresentRunSummary(res, io.Discard)

		return RunCompleteMsg{ExitCode: orchestration.ExitCode(res), Generation: gen}
	}
}

// tickCmd returns a command that sends a TickMsg after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// sampleSysStatsCmd reads system-wide CPU and memory stats and returns a SysStatsMsg.
func sampleSysStatsCmd() tea.Cmd {
	return func() tea.Msg {
		s := sysmon.Sample()
		return SysStatsMsg{
			CPUPercent:   s.CPUPercent,
			MemPercent:   s.MemPercent,
			ProcRSSBytes: s.ProcRSSBytes,
		}
	}
}

// watchContextCmd waits for context cancellation and sends a message.
func watchContextCmd(ctx context.Context, gen uint64) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return ContextCancelledMsg{Err: ctx.Err(), Generation: gen}
	}
}
