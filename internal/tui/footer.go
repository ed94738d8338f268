package tui

import "github.com/charmbracelet/lipgloss"

// FooterModel renders the bottom bar: run status and key hints.
type FooterModel struct {
	width  int
	paused bool
	done   bool
	err    bool
}

// NewFooterModel creates a new footer.
func NewFooterModel() FooterModel {
	return FooterModel{}
}

// SetWidth updates the available width.
func (f *FooterModel) SetWidth(w int) { f.width = w }

// SetPaused toggles the paused status.
func (f *FooterModel) SetPaused(p bool) { f.paused = p }

// SetDone toggles the done status.
func (f *FooterModel) SetDone(d bool) { f.done = d }

// SetError toggles the error status.
func (f *FooterModel) SetError(e bool) { f.err = e }

// View renders the footer.
func (f FooterModel) View() string {
	var status string
	switch {
	case f.err:
		status = statusErrorStyle.Render("● ERROR")
	case f.done:
		status = statusDoneStyle.Render("● DONE")
	case f.paused:
		status = statusPausedStyle.Render("● PAUSED")
	default:
		status = statusRunningStyle.Render("● RUNNING")
	}

	hints := footerKeyStyle.Render("q") + footerDescStyle.Render(" quit  ") +
		footerKeyStyle.Render("p") + footerDescStyle.Render(" pause  ") +
		footerKeyStyle.Render("r") + footerDescStyle.Render(" rerun  ") +
		footerKeyStyle.Render("↑/↓") + footerDescStyle.Render(" scroll")

	left := status + footerDescStyle.Render(" | ") + hints
	gap := f.width - lipgloss.Width(left)
	if gap < 0 {
		gap = 0
	}
	return left + spaces(gap)
}
