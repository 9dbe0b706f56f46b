package companion

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/drive"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/tts"
)

// Phrases spoken while following.
const (
	SayComeCloser = "더 가까이 오세요!"
	SayFollowing  = "따라갈게요!"
	SayTooClose   = "너무 가까워요! 멈췄어요!"
)

// Distance bands for the follow phrases, in cm.
const (
	FarCM    = 150
	FollowCM = 100
)

// DefaultAnnounceCooldown is the minimum gap between two phrases.
const DefaultAnnounceCooldown = 3 * time.Second

// Driver executes drive commands. *actuator.Drive implements it.
type Driver interface {
	Apply(cmd drive.Command)
	Stop()
}

// Announcement returns the phrase for a snapshot, if any: too close, far
// away, or within following range. Nothing is said without a face and a
// distance reading.
func Announcement(s perception.Snapshot, minCM float64) (string, bool) {
	if !s.FaceDetected || !s.HasDistance {
		return "", false
	}
	switch d := s.DistanceCM; {
	case d < minCM:
		return SayTooClose, true
	case d > FarCM:
		return SayComeCloser, true
	case d > FollowCM:
		return SayFollowing, true
	}
	return "", false
}

// Follower applies the approach policy to every snapshot.
type Follower struct {
	approach *drive.Approach
	driver   Driver
	logger   *slog.Logger

	speaker  tts.Speaker
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastSpoke time.Time
	speaking  atomic.Bool
	wg        sync.WaitGroup
}

// NewFollower creates a follower over driver.
func NewFollower(approach *drive.Approach, driver Driver) *Follower {
	return &Follower{
		approach: approach,
		driver:   driver,
		logger:   log.Component("follow"),
		cooldown: DefaultAnnounceCooldown,
		now:      time.Now,
	}
}

// WithLogger replaces the follower's logger.
func (f *Follower) WithLogger(l *slog.Logger) *Follower {
	if l != nil {
		f.logger = l
	}
	return f
}

// WithAnnouncer enables the follow phrases. At most one phrase is spoken
// per cooldown and a phrase is never started while another is playing.
func (f *Follower) WithAnnouncer(s tts.Speaker, cooldown time.Duration) *Follower {
	f.speaker = s
	if cooldown > 0 {
		f.cooldown = cooldown
	}
	return f
}

// Observe applies one snapshot.
func (f *Follower) Observe(ctx context.Context, s perception.Snapshot) {
	cmd := f.approach.Decide(s)
	f.driver.Apply(cmd)

	if f.speaker == nil {
		return
	}
	if text, ok := Announcement(s, f.approach.Config().MinDistanceCM); ok {
		f.announce(ctx, text)
	}
}

// Run observes snapshots until ctx is cancelled or the channel closes,
// then stops the motors and waits for any phrase in flight.
func (f *Follower) Run(ctx context.Context, snaps <-chan perception.Snapshot) error {
	defer f.wg.Wait()
	defer f.driver.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			f.Observe(ctx, s)
		}
	}
}

func (f *Follower) announce(ctx context.Context, text string) {
	f.mu.Lock()
	now := f.now()
	if !f.lastSpoke.IsZero() && now.Sub(f.lastSpoke) < f.cooldown {
		f.mu.Unlock()
		return
	}
	if !f.speaking.CompareAndSwap(false, true) {
		f.mu.Unlock()
		return
	}
	f.lastSpoke = now
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.speaking.Store(false)

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := f.speaker.Speak(ctx, text); err != nil {
			f.logger.Debug("announcement failed", "text", text, "error", err)
		}
	}()
}
