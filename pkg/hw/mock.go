package hw

import (
	"context"
	"sync"
	"time"
)

// MockPin implements DigitalOut and PWMOut for testing. It records every
// write; Level and Duty report the current state.
type MockPin struct {
	Name string

	// Err, when set, is returned by every write. The write is still recorded.
	Err error

	mu    sync.Mutex
	level bool
	duty  float64
	calls []MockCall
}

// MockCall records a write for verification.
type MockCall struct {
	Method string // "Set" or "SetDuty"
	High   bool
	Duty   float64
	Time   time.Time
}

// NewMockPin creates a mock pin.
func NewMockPin(name string) *MockPin {
	return &MockPin{Name: name}
}

// Set records a digital write.
func (m *MockPin) Set(high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: "Set", High: high, Time: time.Now()})
	if m.Err != nil {
		return m.Err
	}
	m.level = high
	return nil
}

// SetDuty records a PWM write.
func (m *MockPin) SetDuty(percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: "SetDuty", Duty: percent, Time: time.Now()})
	if m.Err != nil {
		return m.Err
	}
	m.duty = percent
	return nil
}

// Level returns the last successfully written level.
func (m *MockPin) Level() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Duty returns the last successfully written duty cycle.
func (m *MockPin) Duty() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty
}

// Calls returns all recorded writes.
func (m *MockPin) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of writes made with method.
func (m *MockPin) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the most recent write, or nil if none.
func (m *MockPin) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset clears recorded writes.
func (m *MockPin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// MockRanger is a scripted distance sensor.
type MockRanger struct {
	// DistanceFunc is called by DistanceCM. If nil, 100 cm is returned.
	DistanceFunc func(ctx context.Context) (float64, error)

	mu     sync.Mutex
	reads  int
	closed bool
}

// DistanceCM calls DistanceFunc.
func (m *MockRanger) DistanceCM(ctx context.Context) (float64, error) {
	m.mu.Lock()
	m.reads++
	fn := m.DistanceFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return 100, nil
}

// Reads returns how many times DistanceCM was called.
func (m *MockRanger) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Close marks the ranger closed.
func (m *MockRanger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockRanger) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var (
	_ DigitalOut = (*MockPin)(nil)
	_ PWMOut     = (*MockPin)(nil)
)
