package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qhlab/qcal/internal/config"
	"github.com/qhlab/qcal/internal/format"
	"github.com/qhlab/qcal/internal/nodes"
)

// LogsModel renders the left panel: a per-qubit progress block on top
// and a scrollable event log below.
type LogsModel struct {
	qubitNames []string
	// latest progress per qubit index, 0..1
	progress []float64

	entries []string
	scroll  int
	width   int
	height  int

	keymap KeyMap
}

// NewLogsModel creates a logs panel tracking the given qubits.
func NewLogsModel(qubitNames []string) LogsModel {
	return LogsModel{
		qubitNames: qubitNames,
		progress:   make([]float64, len(qubitNames)),
		keymap:     DefaultKeyMap(),
	}
}

// SetSize updates the panel dimensions.
func (l *LogsModel) SetSize(width, height int) {
	l.width = width
	l.height = height
}

// Reset clears progress and log entries.
func (l *LogsModel) Reset() {
	l.progress = make([]float64, len(l.qubitNames))
	l.entries = nil
	l.scroll = 0
}

// AddExecutionConfig appends the run configuration to the log.
func (l *LogsModel) AddExecutionConfig(cfg config.AppConfig) {
	backend := "hardware"
	if cfg.Simulate {
		backend = "simulator"
	}
	l.addEntry(logProgressStyle.Render(fmt.Sprintf("node %s on %s, %d shots",
		cfg.Node, backend, cfg.Shots)))
	if len(cfg.Qubits) > 0 {
		l.addEntry(logTimeStyle.Render("qubits: " + cfg.Qubits))
	}
}

// AddProgressEntry records an aggregated progress update.
func (l *LogsModel) AddProgressEntry(msg ProgressMsg) {
	if msg.QubitIndex >= 0 && msg.QubitIndex < len(l.progress) {
		l.progress[msg.QubitIndex] = msg.Value
	}
}

// AddRunSummary appends the per-qubit outcomes of a finished run.
func (l *LogsModel) AddRunSummary(msg RunSummaryMsg) {
	res := msg.Result
	l.addEntry(logProgressStyle.Render(fmt.Sprintf("run %s finished in %s",
		res.Node, format.FormatExecutionDuration(res.Duration))))

	names := make([]string, 0, len(res.Outcomes))
	for q := range res.Outcomes {
		names = append(names, q)
	}
	sort.Strings(names)
	for _, q := range names {
		style := logSuccessStyle
		if res.Outcomes[q] != nodes.OutcomeSuccessful {
			style = logErrorStyle
		}
		l.addEntry(logQubitStyle.Render(q+": ") + style.Render(string(res.Outcomes[q])))
	}
	for _, fig := range res.Figures {
		l.addEntry(logTimeStyle.Render("figure: " + fig))
	}
	if res.Err != nil {
		l.addEntry(logErrorStyle.Render("error: " + res.Err.Error()))
	}
}

// AddError appends a run error to the log.
func (l *LogsModel) AddError(msg ErrorMsg) {
	if msg.Err == nil {
		return
	}
	l.addEntry(logErrorStyle.Render("error: " + msg.Err.Error()))
}

func (l *LogsModel) addEntry(line string) {
	stamp := logTimeStyle.Render(time.Now().Format("15:04:05") + " ")
	l.entries = append(l.entries, stamp+line)
	// Follow the tail unless the user scrolled up.
	if l.scroll == 0 {
		return
	}
	l.scroll++
}

// Update handles scroll key presses.
func (l *LogsModel) Update(msg tea.KeyMsg) {
	page := l.height / 2
	if page < 1 {
		page = 1
	}
	switch {
	case key.Matches(msg, l.keymap.Up):
		l.scrollBy(1)
	case key.Matches(msg, l.keymap.Down):
		l.scrollBy(-1)
	case key.Matches(msg, l.keymap.PageUp):
		l.scrollBy(page)
	case key.Matches(msg, l.keymap.PageDown):
		l.scrollBy(-page)
	}
}

// scrollBy moves the view n entries back from the tail (positive = older).
func (l *LogsModel) scrollBy(n int) {
	l.scroll += n
	if l.scroll < 0 {
		l.scroll = 0
	}
	max := len(l.entries) - 1
	if max < 0 {
		max = 0
	}
	if l.scroll > max {
		l.scroll = max
	}
}

// renderToHeight renders the panel at exactly the given outer height so
// the body columns line up.
func (l LogsModel) renderToHeight(height int) string {
	inner := height - 2
	if inner < 1 {
		inner = 1
	}
	w := l.width - 2
	if w < 0 {
		w = 0
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Qubits"))
	b.WriteString("\n")

	barWidth := w - 14
	if barWidth < 4 {
		barWidth = 4
	}
	for i, name := range l.qubitNames {
		filled := int(l.progress[i] * float64(barWidth))
		if filled > barWidth {
			filled = barWidth
		}
		bar := chartBarStyle.Render(strings.Repeat("█", filled)) +
			chartEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			logQubitStyle.Render(fmt.Sprintf("%-4s", name)),
			bar,
			logProgressStyle.Render(fmt.Sprintf("%5.1f%%", l.progress[i]*100))))
	}

	b.WriteString(titleStyle.Render("Log"))
	b.WriteString("\n")

	logLines := inner - len(l.qubitNames) - 2
	if logLines < 1 {
		logLines = 1
	}
	b.WriteString(strings.Join(l.visibleEntries(logLines), "\n"))

	return panelStyle.Width(w).Height(inner).Render(
		lipgloss.NewStyle().MaxWidth(w).Render(b.String()))
}

// visibleEntries returns the log window, honoring the scroll offset.
func (l LogsModel) visibleEntries(n int) []string {
	end := len(l.entries) - l.scroll
	if end < 0 {
		end = 0
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return l.entries[start:end]
}
