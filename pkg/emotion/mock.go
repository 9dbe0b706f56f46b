package emotion

import (
	"context"
	"sync"
)

// Mock implements Classifier for testing.
type Mock struct {
	// ClassifyFunc is called when Classify is invoked.
	// If nil, returns Label.
	ClassifyFunc func(ctx context.Context) (Label, error)
	Label        Label

	mu    sync.Mutex
	calls int
}

// Classify calls ClassifyFunc and counts the call.
func (m *Mock) Classify(ctx context.Context) (Label, error) {
	m.mu.Lock()
	m.calls++
	fn, l := m.ClassifyFunc, m.Label
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if l == "" {
		l = Neutral
	}
	return l, nil
}

// CallCount returns the number of Classify calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{ClassifyFunc: func(context.Context) (Label, error) {
		return Neutral, err
	}}
}

var _ Classifier = (*Mock)(nil)
