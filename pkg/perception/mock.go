package perception

import (
	"context"
	"sync"
	"time"
)

// Mock is a scripted Source for testing. Each Poll returns the next entry of
// Snapshots; the last entry repeats once the script runs out.
type Mock struct {
	Snapshots []Snapshot

	// PollFunc, when set, replaces the script.
	PollFunc func(ctx context.Context) Snapshot

	mu     sync.Mutex
	polls  int
	closed bool
}

// NewMock creates a source that replays snaps.
func NewMock(snaps ...Snapshot) *Mock {
	return &Mock{Snapshots: snaps}
}

// Poll returns the next scripted snapshot.
func (m *Mock) Poll(ctx context.Context) Snapshot {
	m.mu.Lock()
	i := m.polls
	m.polls++
	fn := m.PollFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if len(m.Snapshots) == 0 {
		return NoDetection(time.Now())
	}
	if i >= len(m.Snapshots) {
		i = len(m.Snapshots) - 1
	}
	return m.Snapshots[i]
}

// Polls returns how many times Poll was called.
func (m *Mock) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// Close marks the source closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Source = (*Mock)(nil)
