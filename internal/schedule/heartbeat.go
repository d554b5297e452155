package schedule

import (
	"sync"
	"time"
)

// Heartbeat runs a callback on a fixed interval while started. Start while
// running is a no-op; Stop halts the ticker immediately.
type Heartbeat struct {
	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
}

// NewHeartbeat creates a heartbeat with the given interval.
func NewHeartbeat(interval time.Duration) *Heartbeat {
	return &Heartbeat{interval: interval}
}

// Start begins ticking. fn runs on a dedicated goroutine every interval
// until Stop is called.
func (h *Heartbeat) Start(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ticker != nil {
		return
	}
	h.ticker = time.NewTicker(h.interval)
	h.done = make(chan struct{})

	go func(ticker *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}(h.ticker, h.done)
}

// Stop halts the heartbeat. Safe to call when not running.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ticker == nil {
		return
	}
	h.ticker.Stop()
	close(h.done)
	h.ticker = nil
	h.done = nil
}

// Running reports whether the heartbeat is active.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticker != nil
}
