package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration is the quiet period used for engine position sync.
const DefaultDebounceDuration = 200 * time.Millisecond

// Debouncer coalesces bursts of triggers into a single call. Each Trigger
// cancels any pending call and restarts the timer; only the function passed
// to the last Trigger runs once the quiet period elapses.
type Debouncer struct {
	duration time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	fires uint64
}

// NewDebouncer creates a debouncer with the given quiet period. A
// non-positive duration falls back to DefaultDebounceDuration.
func NewDebouncer(d time.Duration) *Debouncer {
	if d <= 0 {
		d = DefaultDebounceDuration
	}
	return &Debouncer{duration: d}
}

// Trigger schedules fn after the quiet period, replacing any pending call.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		// A Trigger or Cancel that raced with this timer firing wins.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.fires++
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Fires returns how many scheduled calls have run.
func (d *Debouncer) Fires() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fires
}

// Duration returns the quiet period.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}
