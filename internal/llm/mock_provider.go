package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samsaffron/llm-gateway/internal/frame"
)

// MockTurn represents a single response turn from the mock provider.
type MockTurn struct {
	Frames []frame.Frame // Frames to emit in order
	Delay  time.Duration // Optional delay before responding
	Error  error         // Returned after Frames have been emitted
}

// MockProvider is a configurable provider for testing.
// It returns scripted responses and records all requests for verification.
type MockProvider struct {
	name      string
	turns     []MockTurn
	turnIndex int
	Requests  []Request // Recorded requests for verification
	mu        sync.Mutex
}

// NewMockProvider creates a new mock provider with the given name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	return m.name
}

// AddTurn adds a response turn and returns the provider for chaining.
func (m *MockProvider) AddTurn(t MockTurn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

// AddTextResponse adds a turn emitting the given text deltas followed by a
// stop frame.
func (m *MockProvider) AddTextResponse(deltas ...string) *MockProvider {
	frames := make([]frame.Frame, 0, len(deltas)+1)
	for _, d := range deltas {
		frames = append(frames, frame.Frame{Text: d})
	}
	frames = append(frames, frame.Frame{FinishReason: frame.FinishStop})
	return m.AddTurn(MockTurn{Frames: frames})
}

// AddError adds a turn that fails before emitting anything.
func (m *MockProvider) AddError(err error) *MockProvider {
	return m.AddTurn(MockTurn{Error: err})
}

// RequestCount returns the number of recorded requests.
func (m *MockProvider) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Stream implements the Provider interface.
func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)

	if m.turnIndex >= len(m.turns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock provider: no more turns configured (expected turn %d, have %d)", m.turnIndex, len(m.turns))
	}

	turn := m.turns[m.turnIndex]
	m.turnIndex++
	m.mu.Unlock()

	return newFrameStream(ctx, func(ctx context.Context, out chan<- frame.Frame) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}
		for _, f := range turn.Frames {
			if !send(ctx, out, f) {
				return ctx.Err()
			}
		}
		return turn.Error
	}), nil
}

// MockFactory returns a ProviderFactory that serves every route with p.
func MockFactory(p Provider) ProviderFactory {
	return func(route Route, cfg ProviderConfig) (Provider, error) {
		return p, nil
	}
}
