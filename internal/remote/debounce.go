package remote

import (
	"sync"
	"time"
)

// SaveDelay is the quiet period before a scheduled save runs.
const SaveDelay = 1500 * time.Millisecond

// Debouncer runs save with the most recently scheduled value once no new
// value has arrived for the configured delay.
type Debouncer[T any] struct {
	delay time.Duration
	save  func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	armed   bool
	stopped bool
}

func NewDebouncer[T any](delay time.Duration, save func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, save: save}
}

// Schedule replaces the pending value and restarts the delay.
func (d *Debouncer[T]) Schedule(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = v
	d.armed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.armed = false
	d.mu.Unlock()
	d.save(v)
}

// Flush runs a pending save immediately.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop flushes any pending value and ignores later schedules.
func (d *Debouncer[T]) Stop() {
	d.Flush()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
