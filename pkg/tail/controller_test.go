package tail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/perception"
)

// mockServo records every commanded angle.
type mockServo struct {
	mu     sync.Mutex
	angles []float64
	delay  time.Duration
}

func (m *mockServo) SetAngle(deg float64) {
	m.mu.Lock()
	m.angles = append(m.angles, deg)
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (m *mockServo) history() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.angles))
	copy(out, m.angles)
	return out
}

func (m *mockServo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.angles)
}

func newTestController(servo *mockServo) *Controller {
	return NewController(servo, DefaultConfig()).WithLogger(log.Discard())
}

func TestStartWagsWithinBounds(t *testing.T) {
	servo := &mockServo{delay: time.Millisecond}
	c := newTestController(servo)

	c.Start()
	require.Eventually(t, func() bool { return servo.count() > 30 }, 2*time.Second, time.Millisecond)
	c.Stop()

	h := servo.history()
	for _, a := range h[:len(h)-1] {
		assert.GreaterOrEqual(t, a, 60.0)
		assert.LessOrEqual(t, a, 120.0)
	}
	assert.Equal(t, []float64{60, 65, 70}, h[:3], "sweep starts at the low bound in 5° steps")
	assert.Contains(t, h, 120.0)
}

func TestNilLoggerAndMetricsKeepDefaults(t *testing.T) {
	servo := &mockServo{}
	c := NewController(servo, DefaultConfig()).WithLogger(nil).WithMetrics(nil)

	require.NotPanics(t, func() {
		c.Start()
		require.Eventually(t, func() bool { return servo.count() > 0 }, time.Second, time.Millisecond)
		c.Stop()
	})
	h := servo.history()
	assert.Equal(t, DefaultConfig().Neutral, h[len(h)-1])
}

func TestStopEndsAtNeutral(t *testing.T) {
	servo := &mockServo{delay: time.Millisecond}
	c := newTestController(servo)

	for cycle := 0; cycle < 5; cycle++ {
		c.Start()
		time.Sleep(time.Duration(cycle*3) * time.Millisecond)
		c.Stop()

		h := servo.history()
		require.NotEmpty(t, h)
		assert.Equal(t, 90.0, h[len(h)-1], "cycle %d ends at neutral", cycle)
		assert.False(t, c.Reacting())

		// Nothing reaches the servo once Stop has returned.
		n := servo.count()
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, n, servo.count(), "cycle %d: write after neutral", cycle)
	}
}

func TestNeutralExactlyOncePerReactingPeriod(t *testing.T) {
	// A wag grid that never visits the neutral angle makes neutral commands
	// countable.
	servo := &mockServo{delay: time.Millisecond}
	c := NewController(servo, Config{Low: 61, High: 119, Step: 4, Neutral: 90, JoinTimeout: 200 * time.Millisecond}).
		WithLogger(log.Discard())

	periods := 4
	for i := 0; i < periods; i++ {
		c.Start()
		time.Sleep(5 * time.Millisecond)
		c.Stop()
	}

	neutrals := 0
	for _, a := range servo.history() {
		if a == 90 {
			neutrals++
		}
	}
	assert.Equal(t, periods, neutrals)
}

func TestStopTwiceIssuesNoExtraCommands(t *testing.T) {
	servo := &mockServo{delay: time.Millisecond}
	c := newTestController(servo)

	c.Start()
	time.Sleep(5 * time.Millisecond)
	c.Stop()
	n := servo.count()

	c.Stop()
	c.Stop()
	assert.Equal(t, n, servo.count())
}

func TestStartTwiceIsNoop(t *testing.T) {
	servo := &mockServo{delay: 2 * time.Millisecond}
	c := newTestController(servo)

	c.Start()
	first := c.cur
	c.Start()
	assert.Same(t, first, c.cur, "second Start keeps the running routine")
	c.Stop()
}

func TestSlowServoStillEndsAtNeutral(t *testing.T) {
	// Each step outlasts the join timeout.
	servo := &mockServo{delay: 60 * time.Millisecond}
	c := NewController(servo, Config{Low: 60, High: 120, Step: 5, Neutral: 90, JoinTimeout: 10 * time.Millisecond}).
		WithLogger(log.Discard())

	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	h := servo.history()
	assert.Equal(t, 90.0, h[len(h)-1])

	n := servo.count()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, n, servo.count())
}

func TestNoFaceNeverReacts(t *testing.T) {
	servo := &mockServo{}
	c := newTestController(servo)
	c.Center()

	snaps := make(chan perception.Snapshot, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, snaps) }()

	for i := 0; i < 50; i++ {
		snaps <- perception.Snapshot{FaceDetected: false}
		assert.False(t, c.Reacting())
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []float64{90}, servo.history(), "only the initial centring")
}

func TestRapidAlternationLeavesNeutral(t *testing.T) {
	servo := &mockServo{delay: time.Millisecond}
	c := newTestController(servo)

	seq := []bool{true, false, true, false, true, true, false, true, false}
	for _, face := range seq {
		c.Observe(perception.Snapshot{FaceDetected: face})
		time.Sleep(time.Millisecond)
		if !face {
			h := servo.history()
			require.NotEmpty(t, h)
			assert.Equal(t, 90.0, h[len(h)-1])
			assert.False(t, c.Reacting())
		} else {
			assert.True(t, c.Reacting())
		}
	}

	n := servo.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, servo.count(), "no stray wag step after the final stop")
}

func TestRunStopsOnChannelClose(t *testing.T) {
	servo := &mockServo{delay: time.Millisecond}
	c := newTestController(servo)

	snaps := make(chan perception.Snapshot, 1)
	snaps <- perception.Snapshot{FaceDetected: true}
	close(snaps)

	require.NoError(t, c.Run(context.Background(), snaps))
	assert.False(t, c.Reacting())
	h := servo.history()
	assert.Equal(t, 90.0, h[len(h)-1])
}

func TestNewControllerNormalizesConfig(t *testing.T) {
	c := NewController(&mockServo{}, Config{Low: 120, High: 60, Neutral: 90})
	assert.Equal(t, 60.0, c.cfg.Low)
	assert.Equal(t, 120.0, c.cfg.High)
	assert.Equal(t, 5.0, c.cfg.Step)
	assert.Equal(t, 200*time.Millisecond, c.cfg.JoinTimeout)
}
