// Package sysmon provides system-wide CPU and memory usage sampling for
// the run dashboard.
package sysmon

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Stats holds a single snapshot of resource usage.
type Stats struct {
	CPUPercent   float64 // 0.0 .. 100.0
	MemPercent   float64 // 0.0 .. 100.0
	ProcRSSBytes uint64  // resident set size of this process
}

// Sample collects a single CPU, memory and process snapshot.
// CPU uses interval=0 (delta since last call). Returns zero values on error.
func Sample() Stats {
	var s Stats
	cpuPcts, err := cpu.Percent(0, false)
	if err == nil && len(cpuPcts) > 0 {
		s.CPUPercent = cpuPcts[0]
	}
	vmem, err := mem.VirtualMemory()
	if err == nil && vmem != nil {
		s.MemPercent = vmem.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			s.ProcRSSBytes = info.RSS
		}
	}
	return s
}

// Sampler collects periodic snapshots and keeps a bounded history for
// sparkline rendering. Safe for concurrent use.
type Sampler struct {
	mu      sync.Mutex
	history []Stats
	maxLen  int
}

// NewSampler creates a Sampler keeping at most maxLen snapshots.
func NewSampler(maxLen int) *Sampler {
	if maxLen <= 0 {
		maxLen = 60
	}
	return &Sampler{maxLen: maxLen}
}

// Tick takes a snapshot and appends it to the history, evicting the
// oldest entry when full. Returns the new snapshot.
func (s *Sampler) Tick() Stats {
	snap := Sample()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, snap)
	if len(s.history) > s.maxLen {
		s.history = s.history[1:]
	}
	return snap
}

// CPUHistory returns the CPU percentages of the recorded snapshots,
// oldest first.
func (s *Sampler) CPUHistory() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.history))
	for i, snap := range s.history {
		out[i] = snap.CPUPercent
	}
	return out
}

// Latest returns the most recent snapshot, or a zero Stats when none
// was taken yet.
func (s *Sampler) Latest() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Stats{}
	}
	return s.history[len(s.history)-1]
}

// Run samples every interval until done is closed.
func (s *Sampler) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
