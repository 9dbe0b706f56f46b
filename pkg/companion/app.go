// Package companion runs the robot: perception polling, the tail and
// approach reactions, and back-to-back conversation turns, with an ordered
// teardown that always leaves the hardware safe.
package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/conversation"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/tail"
)

// DefaultTurnGap is the pause between two turns.
const DefaultTurnGap = time.Second

// Turner runs one conversation turn. *conversation.Coordinator implements it.
type Turner interface {
	Turn(ctx context.Context) conversation.Turn
}

// Parts are the components an App runs. Only Source is required.
type Parts struct {
	Source perception.Source
	Slot   *perception.Slot

	Tail     *tail.Controller
	Follower *Follower
	// Drive is stopped on teardown even if no Follower uses it.
	Drive Driver

	Turns Turner

	// Release is called in order on teardown, after the drive has stopped
	// and perception is closed. Use it to park and free actuators.
	Release []func()
	// Closers are closed last, in order.
	Closers []io.Closer
}

// Config tunes the main loop.
type Config struct {
	Period  time.Duration // perception poll period
	TurnGap time.Duration
	Logger  *slog.Logger
}

// App is the main loop.
type App struct {
	parts  Parts
	poller *perception.Poller
	cfg    Config
	logger *slog.Logger
}

// New creates an App from parts.
func New(parts Parts, cfg Config) (*App, error) {
	if parts.Source == nil {
		return nil, errors.New("companion: perception source required")
	}
	if parts.Slot == nil {
		parts.Slot = perception.NewSlot()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("companion")
	}
	if cfg.TurnGap < 0 {
		cfg.TurnGap = 0
	}

	return &App{
		parts:  parts,
		poller: perception.NewPoller(parts.Source, parts.Slot, cfg.Period).WithLogger(cfg.Logger.With("task", "poller")),
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Slot returns the shared latest snapshot.
func (a *App) Slot() *perception.Slot {
	return a.parts.Slot
}

// Poller returns the perception poller. Subscribe before Run to receive
// snapshots.
func (a *App) Poller() *perception.Poller {
	return a.poller
}

// Run starts the background tasks and runs turns until ctx is cancelled.
// Teardown always runs, whatever ends the loop. Cancellation is not an
// error.
func (a *App) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	defer func() {
		err = errors.Join(err, a.teardown(cancel, g))
	}()

	if a.parts.Tail != nil {
		snaps := a.poller.Subscribe()
		a.parts.Tail.Center()
		g.Go(func() error { return a.parts.Tail.Run(gctx, snaps) })
	}
	if a.parts.Follower != nil {
		snaps := a.poller.Subscribe()
		g.Go(func() error { return a.parts.Follower.Run(gctx, snaps) })
	}
	g.Go(func() error { return a.poller.Run(gctx) })

	a.logger.Info("momo running",
		"tail", a.parts.Tail != nil,
		"follow", a.parts.Follower != nil,
		"conversation", a.parts.Turns != nil,
	)

	if a.parts.Turns == nil {
		<-gctx.Done()
		return nil
	}

	for gctx.Err() == nil {
		a.turn(gctx)
		if !sleep(gctx, a.cfg.TurnGap) {
			break
		}
	}
	return nil
}

// turn runs one turn, recovering from anything it throws.
func (a *App) turn(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("turn panicked", "panic", r)
		}
	}()
	a.parts.Turns.Turn(ctx)
}

// teardown stops everything in order: background tasks, tail, drive,
// perception, actuators, hardware. Each step runs even if an earlier one
// fails or panics.
func (a *App) teardown(cancel context.CancelFunc, g *errgroup.Group) error {
	var errs []error
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("companion: %s: panic: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("companion: %s: %w", name, err))
		}
	}

	cancel()
	step("tasks", g.Wait)

	if t := a.parts.Tail; t != nil {
		step("tail", func() error { t.Stop(); return nil })
	}
	if d := a.parts.Drive; d != nil {
		step("drive", func() error { d.Stop(); return nil })
	}
	if c, ok := a.parts.Source.(io.Closer); ok {
		step("perception", c.Close)
	}
	for _, release := range a.parts.Release {
		step("release", func() error { release(); return nil })
	}
	for _, c := range a.parts.Closers {
		step("close", c.Close)
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Warn("teardown finished with errors", "error", err)
	}
	a.logger.Info("teardown complete")
	return err
}

// sleep waits d or until ctx ends, and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
