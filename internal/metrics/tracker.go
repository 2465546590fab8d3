package metrics

import "quantick/internal/engine"

// Snapshot is every metric of a run at one tick.
type Snapshot struct {
	Performance Performance `json:"performance"`
	Peaks       Peaks       `json:"peaks"`
	Returns     Returns     `json:"returns"`
}

// Named flattens all three groups.
func (s Snapshot) Named() []Metric {
	out := s.Performance.Named()
	out = append(out, s.Peaks.Named()...)
	return append(out, s.Returns.Named()...)
}

// Tracker refreshes performance, peaks and returns from engine snapshots.
// Each run needs its own Tracker.
type Tracker struct {
	perf    *PerformanceTracker
	peaks   *PeakTracker
	returns *ReturnsTracker
	last    Snapshot
}

// NewTracker creates a tracker for a run starting with initialCapital.
func NewTracker(initialCapital, riskFree float64, conv Convention) *Tracker {
	return &Tracker{
		perf:    NewPerformanceTracker(initialCapital, conv),
		peaks:   NewPeakTracker(),
		returns: NewReturnsTracker(riskFree, conv),
	}
}

// Update folds one tick into every metric.
func (t *Tracker) Update(s engine.Snapshot) Snapshot {
	if s.Closed {
		t.perf.OnTradeClosed(s.ClosedTrade)
	}
	t.last = Snapshot{
		Performance: t.perf.Snapshot(s.Equity, s.OpenProfit),
		Peaks:       t.peaks.Update(s),
		Returns:     t.returns.Update(s.Equity),
	}
	return t.last
}

// Last returns the most recent snapshot.
func (t *Tracker) Last() Snapshot { return t.last }
