// Package metrics collects in-process timings and counters for boardsync's
// hot paths: reconciling snapshots, fetching positions from the store and
// pushing positions to the analysis engine.
//
// Collection is on by default and can be disabled with BOARDSYNC_METRICS=0.
//
//	func fetch() {
//	    defer metrics.Timer(metrics.SnapshotFetch)()
//	    // ...
//	}
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("BOARDSYNC_METRICS") != "0")
}

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled toggles collection.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// TimingMetric tracks timing statistics for a named operation.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 means unset
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.totalNs.Add(ns)

	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.minNs.Load()
		if old != 0 && ns >= old {
			break
		}
		if m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string { return m.name }

// Count returns the number of measurements.
func (m *TimingMetric) Count() int64 { return m.count.Load() }

// AvgNs returns the mean duration, or 0 with no data.
func (m *TimingMetric) AvgNs() int64 {
	n := m.count.Load()
	if n == 0 {
		return 0
	}
	return m.totalNs.Load() / n
}

// Stats returns a point-in-time copy of the metric.
func (m *TimingMetric) Stats() TimingStats {
	return TimingStats{
		Name:    m.name,
		Count:   m.count.Load(),
		TotalMs: float64(m.totalNs.Load()) / 1e6,
		AvgMs:   float64(m.AvgNs()) / 1e6,
		MaxMs:   float64(m.maxNs.Load()) / 1e6,
		MinMs:   float64(m.minNs.Load()) / 1e6,
	}
}

// Reset clears the metric.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.minNs.Store(0)
}

// TimingStats is a snapshot of one timing metric.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer returns a function that records the elapsed time when called.
func Timer(m *TimingMetric) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

var (
	Reconcile     = newTimingMetric("reconcile")
	SnapshotFetch = newTimingMetric("snapshot_fetch")
	MoveApply     = newTimingMetric("move_apply")
	EngineSync    = newTimingMetric("engine_sync")
	ThreatSearch  = newTimingMetric("threat_search")
	BoardRender   = newTimingMetric("board_render")
)

// AllTimingMetrics returns every registered timing metric.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{Reconcile, SnapshotFetch, MoveApply, EngineSync, ThreatSearch, BoardRender}
}

// AllTimingStats returns stats for metrics that have data.
func AllTimingStats() []TimingStats {
	all := AllTimingMetrics()
	out := make([]TimingStats, 0, len(all))
	for _, m := range all {
		if m.Count() > 0 {
			out = append(out, m.Stats())
		}
	}
	return out
}

// ResetAll clears every timing metric and counter.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, c := range AllCounters() {
		c.Reset()
	}
}
