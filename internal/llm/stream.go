package llm

import (
	"context"
	"io"

	"github.com/samsaffron/llm-gateway/internal/frame"
)

// Stream yields frames from one upstream call until io.EOF.
type Stream interface {
	Recv() (frame.Frame, error)
	Close() error
}

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	frames <-chan frame.Frame
	errc   <-chan error
	done   bool
}

// newFrameStream runs fn in a goroutine that owns the upstream response.
// An error returned by fn is surfaced by Recv after all frames sent
// before it.
func newFrameStream(ctx context.Context, run func(context.Context, chan<- frame.Frame) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan frame.Frame, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := run(streamCtx, ch); err != nil {
			errc <- err
		}
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, frames: ch, errc: errc}
}

func (s *channelStream) Recv() (frame.Frame, error) {
	if s.done {
		return frame.Frame{}, io.EOF
	}
	// Drain buffered frames before reporting cancellation.
	select {
	case f, ok := <-s.frames:
		if ok {
			return f, nil
		}
		return s.finish()
	default:
	}

	select {
	case <-s.ctx.Done():
		s.done = true
		return frame.Frame{}, s.ctx.Err()
	case f, ok := <-s.frames:
		if ok {
			return f, nil
		}
		return s.finish()
	}
}

func (s *channelStream) finish() (frame.Frame, error) {
	s.done = true
	select {
	case err := <-s.errc:
		return frame.Frame{}, err
	default:
		return frame.Frame{}, io.EOF
	}
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}

// send delivers f unless ctx is cancelled first.
func send(ctx context.Context, out chan<- frame.Frame, f frame.Frame) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- f:
		return true
	}
}
