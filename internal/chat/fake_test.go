package chat

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
)

// gate feeds frames to a stream one at a time; send returns once the
// consumer has handled the frame.
type gate struct {
	frames chan frame.Frame
	acks   chan struct{}
}

func newGate() *gate {
	return &gate{frames: make(chan frame.Frame), acks: make(chan struct{})}
}

func (g *gate) send(f frame.Frame) {
	g.frames <- f
	<-g.acks
}

func (g *gate) close() { close(g.frames) }

type fakeTurn struct {
	frames  []frame.Frame
	err     error // yielded after frames
	openErr error
	gate    *gate
}

type fakeStreamer struct {
	mu       sync.Mutex
	turns    []fakeTurn
	requests []llm.Request
}

func (s *fakeStreamer) add(t fakeTurn) *fakeStreamer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return s
}

func (s *fakeStreamer) addText(reason frame.FinishReason, deltas ...string) *fakeStreamer {
	var frames []frame.Frame
	for _, d := range deltas {
		frames = append(frames, frame.Frame{Text: d})
	}
	frames = append(frames, frame.Frame{FinishReason: reason})
	return s.add(fakeTurn{frames: frames})
}

func (s *fakeStreamer) lastRequest(t *testing.T) llm.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return s.requests[len(s.requests)-1]
}

func (s *fakeStreamer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeStreamer) Open(ctx context.Context, req llm.Request) (iter.Seq2[frame.Frame, error], error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.turns) == 0 {
		s.mu.Unlock()
		return nil, errors.New("no turn configured")
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	s.mu.Unlock()

	if turn.openErr != nil {
		return nil, turn.openErr
	}
	return func(yield func(frame.Frame, error) bool) {
		if turn.gate != nil {
			for f := range turn.gate.frames {
				ok := yield(f, nil)
				turn.gate.acks <- struct{}{}
				if !ok {
					return
				}
			}
			return
		}
		for _, f := range turn.frames {
			if !yield(f, nil) {
				return
			}
		}
		if turn.err != nil {
			yield(frame.Frame{}, turn.err)
		}
	}, nil
}

// idleTicker never ticks, so all text arrives through the final flush.
type idleTicker struct{ c chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.c }
func (t idleTicker) Stop()               {}

// manualTicker ticks when the test says so.
type manualTicker struct{ c chan time.Time }

func newManualTicker() *manualTicker { return &manualTicker{c: make(chan time.Time)} }

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               {}
func (t *manualTicker) Tick()               { t.c <- time.Now() }

type notice struct {
	level Level
	msg   string
}

type recorder struct {
	mu       sync.Mutex
	notices  []notice
	persists [][]Conversation
}

func (r *recorder) Notify(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{level, msg})
}

func (r *recorder) Persist(c []Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persists = append(r.persists, c)
}

func (r *recorder) noticeCount(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, nt := range r.notices {
		if nt.level == level {
			n++
		}
	}
	return n
}

func (r *recorder) persistCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.persists)
}

type fakeTitler struct {
	mu    sync.Mutex
	calls int
	title string
}

func (f *fakeTitler) Generate(ctx context.Context, userText, modelText string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.title
}

func (f *fakeTitler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	r        *Reconciler
	streamer *fakeStreamer
	rec      *recorder
	titler   *fakeTitler
}

func newHarness(t *testing.T, userID string) *harness {
	t.Helper()
	h := &harness{
		streamer: &fakeStreamer{},
		rec:      &recorder{},
		titler:   &fakeTitler{title: "Generated Title"},
	}
	h.r = New(Options{
		Streamer:  h.streamer,
		Titler:    h.titler,
		Notifier:  h.rec,
		Persister: h.rec,
		UserID:    userID,
		NewTicker: func() Ticker { return idleTicker{c: make(chan time.Time)} },
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(h.r.Close)
	return h
}

func (h *harness) active(t *testing.T) Conversation {
	t.Helper()
	c, ok := h.r.Active()
	if !ok {
		t.Fatal("no active conversation")
	}
	return c
}

// sendAsync starts Send on its own goroutine.
func (h *harness) sendAsync(text string) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- h.r.Send(context.Background(), text, nil) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for generation")
		return nil
	}
}

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
