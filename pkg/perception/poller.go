package perception

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sptcnl/momo/internal/log"
)

// DefaultPeriod is the poll period used when none is configured.
const DefaultPeriod = 500 * time.Millisecond

// Poller runs a Source at a fixed period, stores each snapshot in a Slot
// and hands it to subscribers.
type Poller struct {
	source Source
	slot   *Slot
	period time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	subs    []chan Snapshot
	running bool
	polls   uint64
}

// NewPoller creates a poller writing into slot.
func NewPoller(source Source, slot *Slot, period time.Duration) *Poller {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Poller{
		source: source,
		slot:   slot,
		period: period,
		logger: log.Component("poller"),
	}
}

// WithLogger replaces the poller's logger.
func (p *Poller) WithLogger(l *slog.Logger) *Poller {
	if l != nil {
		p.logger = l
	}
	return p
}

// Subscribe returns a channel receiving every snapshot from now on. The
// channel holds one pending value; a slow reader sees only the newest
// snapshot. The channel is closed when Run returns. Subscribe must be
// called before Run.
func (p *Poller) Subscribe() <-chan Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 1)
	p.subs = append(p.subs, ch)
	return ch
}

// Polls returns the number of completed polls.
func (p *Poller) Polls() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// Run polls immediately and then every period until ctx is cancelled.
// It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("perception: poller already running")
	}
	p.running = true
	p.mu.Unlock()

	defer p.closeSubs()

	p.logger.Info("perception polling started", "period", p.period)
	defer p.logger.Info("perception polling stopped")

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	snap := p.poll(ctx)
	if ctx.Err() != nil {
		return
	}
	p.slot.Store(snap)

	p.mu.Lock()
	p.polls++
	subs := p.subs
	p.mu.Unlock()

	for _, ch := range subs {
		offer(ch, snap)
	}
}

// poll shields the loop from a panicking source.
func (p *Poller) poll(ctx context.Context) (snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("perception source panicked", "panic", r)
			snap = NoDetection(time.Now())
			snap.Err = fmt.Sprint(r)
		}
	}()
	return p.source.Poll(ctx)
}

// offer delivers snap, replacing any value the reader has not taken yet.
func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (p *Poller) closeSubs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
	p.running = false
}
