package format

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxETA caps the estimate so pathological rates never display absurd
// values.
const maxETA = 24 * time.Hour

// etaSmoothing is the exponential smoothing factor applied to the
// progress rate; lower values favour the historical rate.
const etaSmoothing = 0.3

// ProgressState tracks the fractional progress of several concurrent
// workers and aggregates them into a single average.
type ProgressState struct {
	mu         sync.Mutex
	numQubits  int
	progresses []float64
}

// NewProgressState creates a tracker for n workers.
func NewProgressState(n int) *ProgressState {
	if n < 0 {
		n = 0
	}
	return &ProgressState{
		numQubits:  n,
		progresses: make([]float64, n),
	}
}

// Update records a worker's progress, clamped to [0, 1]. Out-of-range
// indices are ignored.
func (ps *ProgressState) Update(index int, value float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if index < 0 || index >= len(ps.progresses) {
		return
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	ps.progresses[index] = value
}

// CalculateAverage returns the mean progress across all workers.
func (ps *ProgressState) CalculateAverage() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.numQubits == 0 {
		return 0
	}
	var sum float64
	for _, p := range ps.progresses {
		sum += p
	}
	return sum / float64(ps.numQubits)
}

// ProgressWithETA extends ProgressState with a smoothed progress rate
// from which a time-remaining estimate is derived.
type ProgressWithETA struct {
	*ProgressState

	mu           sync.Mutex
	numQubits    int
	progressRate float64 // fraction per second, smoothed
	startTime    time.Time
	lastUpdate   time.Time
	lastAverage  float64
}

// NewProgressWithETA creates an ETA-aware tracker for n workers.
func NewProgressWithETA(n int) *ProgressWithETA {
	now := time.Now()
	return &ProgressWithETA{
		ProgressState: NewProgressState(n),
		numQubits:     n,
		startTime:     now,
		lastUpdate:    now,
	}
}

// UpdateWithETA records a worker's progress and returns the new average
// together with the current time-remaining estimate.
func (p *ProgressWithETA) UpdateWithETA(index int, value float64) (float64, time.Duration) {
	p.Update(index, value)
	avg := p.CalculateAverage()

	p.mu.Lock()
	now := time.Now()
	if dt := now.Sub(p.lastUpdate).Seconds(); dt > 0 {
		instant := (avg - p.lastAverage) / dt
		if instant >= 0 {
			if p.progressRate == 0 {
				p.progressRate = instant
			} else {
				p.progressRate = etaSmoothing*instant + (1-etaSmoothing)*p.progressRate
			}
		}
	}
	p.lastUpdate = now
	p.lastAverage = avg
	p.mu.Unlock()

	return avg, p.GetETA()
}

// GetETA returns the current time-remaining estimate, zero when no rate
// has been established yet.
func (p *ProgressWithETA) GetETA() time.Duration {
	avg := p.CalculateAverage()

	p.mu.Lock()
	rate := p.progressRate
	p.mu.Unlock()

	if rate <= 0 || avg >= 1 {
		return 0
	}
	eta := time.Duration((1 - avg) / rate * float64(time.Second))
	if eta > maxETA {
		return maxETA
	}
	return eta
}

// FormatETA renders an estimate compactly: "2m30s", "1h15m", "45s".
// Zero and negative estimates render as "calculating...".
func FormatETA(eta time.Duration) string {
	if eta <= 0 {
		return "calculating..."
	}
	if eta < time.Second {
		return "< 1s"
	}
	if eta < time.Minute {
		return fmt.Sprintf("%ds", int(eta.Seconds()))
	}
	if eta < time.Hour {
		m := int(eta.Minutes())
		s := int(eta.Seconds()) - m*60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(eta.Hours())
	m := int(eta.Minutes()) - h*60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}

// ProgressBar renders a fixed-width bar of filled and empty blocks.
func ProgressBar(progress float64, length int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(length))
	return strings.Repeat("█", filled) + strings.Repeat("░", length-filled)
}

// FormatProgressBarWithETA combines the bar, a percentage and the ETA
// into one status line.
func FormatProgressBarWithETA(progress float64, eta time.Duration, width int) string {
	pct := progress * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("[%s] %5.1f%% ETA: %s", ProgressBar(progress, width), pct, FormatETA(eta))
}

// FormatNumberString inserts thousand separators into a decimal string.
func FormatNumberString(s string) string {
	if s == "" {
		return s
	}
	sign := ""
	if s[0] == '-' {
		sign, s = "-", s[1:]
	}
	n := len(s)
	if n <= 3 {
		return sign + s
	}
	var b strings.Builder
	first := n % 3
	if first > 0 {
		b.WriteString(s[:first])
	}
	for i := first; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}
