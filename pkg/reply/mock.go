package reply

import (
	"context"
	"sync"
	"time"
)

// Mock implements Generator for testing.
type Mock struct {
	// ReplyFunc is called when Reply is invoked.
	// If nil, returns Text.
	ReplyFunc func(ctx context.Context, req Request) (string, error)

	Text      string
	NameValue string

	mu    sync.Mutex
	calls []Request
}

// NewMock creates a mock that always answers text.
func NewMock(text string) *Mock {
	return &Mock{Text: text}
}

// Name returns NameValue or "mock".
func (m *Mock) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

// Reply calls ReplyFunc and records the request.
func (m *Mock) Reply(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn, text := m.ReplyFunc, m.Text
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return text, nil
}

// Requests returns the recorded requests.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Reply calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{ReplyFunc: func(context.Context, Request) (string, error) {
		return "", err
	}}
}

// WithLatency wraps m so every call first waits delay or until ctx ends.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	inner, text := m.ReplyFunc, m.Text
	m.ReplyFunc = func(ctx context.Context, req Request) (string, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if inner != nil {
			return inner(ctx, req)
		}
		return text, nil
	}
	return m
}

var _ Generator = (*Mock)(nil)
