package stt

import (
	"context"
	"sync"
	"time"
)

// Mock implements Transcriber for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns Text.
	TranscribeFunc func(ctx context.Context, window time.Duration) (string, error)

	// Text is the default transcript.
	Text string

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Transcribe invocation.
type MockCall struct {
	Window time.Duration
	Time   time.Time
}

// NewMock returns a mock that always hears text.
func NewMock(text string) *Mock {
	return &Mock{Text: text}
}

// Transcribe calls TranscribeFunc and records the call.
func (m *Mock) Transcribe(ctx context.Context, window time.Duration) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Window: window, Time: time.Now()})
	fn, text := m.TranscribeFunc, m.Text
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, window)
	}
	return text, nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Transcribe calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		TranscribeFunc: func(context.Context, time.Duration) (string, error) {
			return "", err
		},
	}
}

// WithLatency wraps m so every call first waits delay or until ctx ends.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	inner := m.TranscribeFunc
	text := m.Text
	m.TranscribeFunc = func(ctx context.Context, window time.Duration) (string, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if inner != nil {
			return inner(ctx, window)
		}
		return text, nil
	}
	return m
}

var _ Transcriber = (*Mock)(nil)
