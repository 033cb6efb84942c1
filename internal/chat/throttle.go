package chat

import (
	"strings"
	"sync"
	"time"
)

// FlushInterval is the default cadence for applying streamed text.
const FlushInterval = 16 * time.Millisecond

// Ticker delivers flush ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// throttle collects streamed text and hands it to apply at most once per
// tick. Close stops ticking and applies whatever is still pending, so the
// final flush is never lost or reordered.
type throttle struct {
	ticker Ticker
	apply  func(string)

	mu      sync.Mutex
	pending strings.Builder
	closed  bool

	stop chan struct{}
	done chan struct{}
}

func newThrottle(t Ticker, apply func(string)) *throttle {
	th := &throttle{
		ticker: t,
		apply:  apply,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go th.loop()
	return th
}

func (t *throttle) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C():
			t.flush()
		}
	}
}

// Add queues text for the next flush.
func (t *throttle) Add(text string) {
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.pending.WriteString(text)
	}
}

func (t *throttle) take() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.pending.String()
	t.pending.Reset()
	return s
}

func (t *throttle) flush() {
	if s := t.take(); s != "" {
		t.apply(s)
	}
}

// Close applies any pending text after the tick loop has exited.
func (t *throttle) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	<-t.done
	t.ticker.Stop()

	t.mu.Lock()
	s := t.pending.String()
	t.pending.Reset()
	t.mu.Unlock()
	if s != "" {
		t.apply(s)
	}
}
