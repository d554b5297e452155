// Package schedule provides the cancellable timer primitives the cart
// engine runs on: a replace-on-reschedule debouncer and a fixed-interval
// heartbeat. Both are independent of any UI runtime.
package schedule

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into a single callback invocation
// a fixed delay after the last trigger. Scheduling while a timer is pending
// replaces the pending timer.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule arms the debouncer, cancelling any pending invocation. fn runs
// on the timer goroutine once the delay elapses without another Schedule.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel stops any pending invocation.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether an invocation is currently scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
