// Package syncer reconciles locally persisted sessions with the backend.
package syncer

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid triggers into a single callback. Rapid
// successive calls reset the timer, so the callback runs once the triggers
// go quiet for the configured duration.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

// NewDebouncer creates a new debouncer with the specified duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
	}
}

// Debounce schedules fn to run after the debounce duration has elapsed
// without any new calls. A pending earlier call is replaced.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Immediate runs fn now and drops any pending call.
func (d *Debouncer) Immediate(fn func()) {
	d.Cancel()
	fn()
}
