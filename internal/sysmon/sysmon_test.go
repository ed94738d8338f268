package sysmon

import "testing"

func TestSample_ReturnsValidRanges(t *testing.T) {
	s := Sample()
	if s.CPUPercent < 0 || s.CPUPercent > 100 {
		t.Errorf("CPUPercent out of range: %f", s.CPUPercent)
	}
	if s.MemPercent < 0 || s.MemPercent > 100 {
		t.Errorf("MemPercent out of range: %f", s.MemPercent)
	}
}

func TestSample_MemPercentNonZero(t *testing.T) {
	s := Sample()
	if s.MemPercent == 0 {
		t.Error("expected non-zero MemPercent on a running system")
	}
}

func TestSample_ProcRSSNonZero(t *testing.T) {
	s := Sample()
	if s.ProcRSSBytes == 0 {
		t.Error("expected non-zero RSS for the test process")
	}
}

func TestSamplerHistoryBounded(t *testing.T) {
	sampler := NewSampler(3)
	for i := 0; i < 5; i++ {
		sampler.Tick()
	}

	history := sampler.CPUHistory()
	if len(history) != 3 {
		t.Errorf("history length = %d, want 3", len(history))
	}
	if sampler.Latest().MemPercent == 0 {
		t.Error("latest snapshot should have memory data")
	}
}

func TestSamplerLatestEmpty(t *testing.T) {
	sampler := NewSampler(10)
	if got := sampler.Latest(); got != (Stats{}) {
		t.Errorf("Latest on empty sampler = %+v, want zero Stats", got)
	}
}
