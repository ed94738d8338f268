package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/qhlab/qcal/internal/format"
)

const (
	// sparklineWidth is the horizontal space reserved for the sparkline
	// labels and padding inside the chart panel.
	sparklineWidth = 17
	// defaultHistoryCap is the buffer capacity before the first resize.
	defaultHistoryCap = 60
	// minSparklineHeight is the minimum panel height at which the
	// CPU/MEM sparklines are shown.
	minSparklineHeight = 10
)

// ChartModel renders the right-hand panel: average progress over time as
// a braille chart, a textual progress bar with ETA, and CPU/memory
// sparklines sampled from the host.
type ChartModel struct {
	width  int
	height int

	averageProgress float64
	eta             time.Duration

	progressHistory *RingBuffer
	cpuHistory      *RingBuffer
	memHistory      *RingBuffer

	done          bool
	finalDuration time.Duration
}

// NewChartModel creates an empty chart.
func NewChartModel() ChartModel {
	return ChartModel{
		progressHistory: NewRingBuffer(defaultHistoryCap),
		cpuHistory:      NewRingBuffer(defaultHistoryCap),
		memHistory:      NewRingBuffer(defaultHistoryCap),
	}
}

// SetSize updates the panel dimensions and resizes the history buffers
// to the drawable width.
func (c *ChartModel) SetSize(width, height int) {
	c.width = width
	c.height = height

	w := width - sparklineWidth
	if w < 1 {
		w = 1
	}
	c.progressHistory.Resize(w)
	c.cpuHistory.Resize(w)
	c.memHistory.Resize(w)
}

// AddDataPoint records one aggregated progress sample.
func (c *ChartModel) AddDataPoint(value, averageProgress float64, eta time.Duration) {
	c.averageProgress = averageProgress
	c.eta = eta
	c.progressHistory.Push(averageProgress * 100)
}

// UpdateSysStats records one CPU/memory sample.
func (c *ChartModel) UpdateSysStats(cpuPercent, memPercent float64) {
	c.cpuHistory.Push(cpuPercent)
	c.memHistory.Push(memPercent)
}

// SetDone freezes the ETA display at the final run duration.
func (c *ChartModel) SetDone(duration time.Duration) {
	c.done = true
	c.finalDuration = duration
}

// Reset clears all recorded history.
func (c *ChartModel) Reset() {
	c.averageProgress = 0
	c.eta = 0
	c.done = false
	c.finalDuration = 0
	c.progressHistory.Reset()
	c.cpuHistory.Reset()
	c.memHistory.Reset()
}

// renderProgressBar renders the textual progress bar with percentage.
// Returns an empty string when the panel is too narrow.
func (c ChartModel) renderProgressBar() string {
	barWidth := c.width - 12
	if barWidth < 4 {
		return ""
	}

	filled := int(c.averageProgress * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}

	bar := chartBarStyle.Render(strings.Repeat("█", filled)) +
		chartEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("%s %5.1f%%", bar, c.averageProgress*100)
}

// renderETA renders the ETA line, or the final duration once done.
func (c ChartModel) renderETA() string {
	if c.done {
		return metricLabelStyle.Render("ETA: ") +
			metricValueStyle.Render("done in "+format.FormatExecutionDuration(c.finalDuration))
	}
	if c.eta <= 0 {
		return metricLabelStyle.Render("ETA: ") + metricValueStyle.Render("--")
	}
	return metricLabelStyle.Render("ETA: ") +
		metricValueStyle.Render(format.FormatExecutionDuration(c.eta))
}

// View renders the chart panel.
func (c ChartModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Progress Chart"))
	b.WriteString("\n")
	b.WriteString(c.renderETA())
	b.WriteString("\n")

	if bar := c.renderProgressBar(); bar != "" {
		b.WriteString(bar)
		b.WriteString("\n")
	}

	chartRows := c.height - 6
	if chartRows < 1 {
		chartRows = 1
	}
	if chartRows > 4 {
		chartRows = 4
	}
	chartW := c.width - sparklineWidth
	if chartW < 1 {
		chartW = 1
	}
	for _, row := range RenderBrailleChart(c.progressHistory.Slice(), chartW, chartRows) {
		b.WriteString(chartBarStyle.Render(row))
		b.WriteString("\n")
	}

	if c.height >= minSparklineHeight {
		b.WriteString(metricLabelStyle.Render("CPU "))
		b.WriteString(cpuSparklineStyle.Render(RenderSparkline(c.cpuHistory.Slice())))
		b.WriteString(c.latestLabel(c.cpuHistory))
		b.WriteString("\n")
		b.WriteString(metricLabelStyle.Render("MEM "))
		b.WriteString(memSparklineStyle.Render(RenderSparkline(c.memHistory.Slice())))
		b.WriteString(c.latestLabel(c.memHistory))
	}

	inner := b.String()
	w := c.width - 2
	if w < 0 {
		w = 0
	}
	h := c.height - 2
	if h < 0 {
		h = 0
	}
	return panelStyle.Width(w).Height(h).Render(
		lipgloss.NewStyle().MaxWidth(w).Render(inner))
}

func (c ChartModel) latestLabel(buf *RingBuffer) string {
	if buf.Len() == 0 {
		return ""
	}
	return metricValueStyle.Render(fmt.Sprintf(" %5.1f%%", buf.Last()))
}
