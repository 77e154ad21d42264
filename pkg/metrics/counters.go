package metrics

import "sync/atomic"

// Counter is a monotonically increasing event count.
type Counter struct {
	name string
	n    atomic.Int64
}

func newCounter(name string) *Counter {
	return &Counter{name: name}
}

// Inc adds one.
func (c *Counter) Inc() {
	if !Enabled() {
		return
	}
	c.n.Add(1)
}

// Name returns the counter name.
func (c *Counter) Name() string { return c.name }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.n.Load() }

// Reset zeroes the counter.
func (c *Counter) Reset() { c.n.Store(0) }

var (
	// StaleSnapshots counts navigation fetches discarded on arrival.
	StaleSnapshots = newCounter("stale_snapshots")
	// StalePVs counts engine updates for superseded positions.
	StalePVs = newCounter("stale_pvs")
	// StaleThreats counts threat replies for superseded positions.
	StaleThreats = newCounter("stale_threats")
	FetchErrors  = newCounter("fetch_errors")
	MoveRejects  = newCounter("move_rejects")
	BadOverlays  = newCounter("bad_overlay_tokens")
	EngineSyncs  = newCounter("engine_syncs")
)

// AllCounters returns every registered counter.
func AllCounters() []*Counter {
	return []*Counter{StaleSnapshots, StalePVs, StaleThreats, FetchErrors, MoveRejects, BadOverlays, EngineSyncs}
}

// CounterValues returns a name to value map of non-zero counters.
func CounterValues() map[string]int64 {
	out := make(map[string]int64)
	for _, c := range AllCounters() {
		if v := c.Value(); v != 0 {
			out[c.name] = v
		}
	}
	return out
}
