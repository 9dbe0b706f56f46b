// Package tail wags the tail servo while someone is in view.
package tail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/telemetry"
	"github.com/sptcnl/momo/pkg/perception"
)

// Actuator is the servo the controller drives.
type Actuator interface {
	SetAngle(deg float64)
}

// Config describes the wag pattern.
type Config struct {
	Low     float64 // sweep lower bound, degrees
	High    float64 // sweep upper bound, degrees
	Step    float64 // degrees per step
	Neutral float64 // rest angle

	// JoinTimeout bounds how long Stop waits for the wag routine to exit.
	JoinTimeout time.Duration
}

// DefaultConfig returns a 60°..120° wag in 5° steps, resting at 90°.
func DefaultConfig() Config {
	return Config{
		Low:         60,
		High:        120,
		Step:        5,
		Neutral:     90,
		JoinTimeout: 200 * time.Millisecond,
	}
}

// run is one Reacting period. active is guarded by Controller.wmu.
type run struct {
	active bool
	done   chan struct{}
}

// Controller is the Idle/Reacting state machine. While Reacting a goroutine
// sweeps the servo between Low and High; leaving Reacting always ends with
// exactly one Neutral command.
type Controller struct {
	servo   Actuator
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu  sync.Mutex // serializes Start/Stop
	cur *run

	wmu sync.Mutex // serializes servo writes against deactivation
}

// NewController creates an idle controller.
func NewController(servo Actuator, cfg Config) *Controller {
	if cfg.Step <= 0 {
		cfg.Step = DefaultConfig().Step
	}
	if cfg.Low > cfg.High {
		cfg.Low, cfg.High = cfg.High, cfg.Low
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultConfig().JoinTimeout
	}
	return &Controller{
		servo:  servo,
		cfg:    cfg,
		logger: log.Component("tail"),
	}
}

// WithLogger replaces the controller's logger.
func (c *Controller) WithLogger(l *slog.Logger) *Controller {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithMetrics records reactions on m.
func (c *Controller) WithMetrics(m *telemetry.Metrics) *Controller {
	if m != nil {
		c.metrics = m
	}
	return c
}

// Reacting reports whether a wag is in progress.
func (c *Controller) Reacting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

// Center moves the servo to Neutral if idle. Call once at startup so the
// idle invariant holds from the first poll.
func (c *Controller) Center() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		c.servo.SetAngle(c.cfg.Neutral)
	}
}

// Start begins wagging. No-op while already Reacting.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		return
	}

	r := &run{active: true, done: make(chan struct{})}
	c.cur = r
	go c.wag(r)

	c.metrics.TailReacted(context.Background())
	c.logger.Info("tail reaction started")
}

// Stop ends the wag: it deactivates the routine, waits up to JoinTimeout
// for it to exit, then commands Neutral once whether or not the wait
// succeeded. No-op while Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.cur
	if r == nil {
		return
	}
	c.cur = nil

	// After this no wag step can reach the servo.
	c.wmu.Lock()
	r.active = false
	c.wmu.Unlock()

	timer := time.NewTimer(c.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		c.logger.Warn("tail routine did not exit in time", "timeout", c.cfg.JoinTimeout)
	}

	c.servo.SetAngle(c.cfg.Neutral)
	c.logger.Info("tail reaction stopped")
}

// Observe applies one snapshot: a face starts the wag, no face stops it.
func (c *Controller) Observe(s perception.Snapshot) {
	if s.FaceDetected {
		c.Start()
	} else {
		c.Stop()
	}
}

// Run observes snapshots until ctx is cancelled or the channel closes, then
// stops any reaction.
func (c *Controller) Run(ctx context.Context, snaps <-chan perception.Snapshot) error {
	defer c.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			c.Observe(s)
		}
	}
}

func (c *Controller) wag(r *run) {
	defer close(r.done)
	for {
		for a := c.cfg.Low; a <= c.cfg.High; a += c.cfg.Step {
			if !c.step(r, a) {
				return
			}
		}
		for a := c.cfg.High; a >= c.cfg.Low; a -= c.cfg.Step {
			if !c.step(r, a) {
				return
			}
		}
	}
}

// step writes one wag position unless the run has been deactivated.
func (c *Controller) step(r *run, deg float64) bool {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if !r.active {
		return false
	}
	c.servo.SetAngle(deg)
	return true
}
