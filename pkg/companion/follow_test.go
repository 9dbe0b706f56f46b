package companion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/drive"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/tts"
)

func seen(cm float64) perception.Snapshot {
	return perception.Snapshot{FaceDetected: true, FaceCount: 1, DistanceCM: cm, HasDistance: true}
}

func TestAnnouncement(t *testing.T) {
	tests := []struct {
		name string
		snap perception.Snapshot
		want string
		ok   bool
	}{
		{"no face", perception.Snapshot{DistanceCM: 200, HasDistance: true}, "", false},
		{"no distance", perception.Snapshot{FaceDetected: true}, "", false},
		{"far", seen(200), SayComeCloser, true},
		{"following", seen(120), SayFollowing, true},
		{"boundary 150", seen(150), SayFollowing, true},
		{"close enough", seen(80), "", false},
		{"too close", seen(20), SayTooClose, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Announcement(tt.snap, 30)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFollowerObserve(t *testing.T) {
	driver := &fakeDriver{}
	f := NewFollower(drive.NewApproach(drive.DefaultApproachConfig()), driver).WithLogger(log.Discard())

	f.Observe(context.Background(), seen(120))
	f.Observe(context.Background(), seen(20))
	f.Observe(context.Background(), perception.Snapshot{})

	cmds := driver.commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, drive.Forward, cmds[0].Action)
	assert.Equal(t, drive.Stop, cmds[1].Action, "too close stops")
	assert.Equal(t, drive.Stop, cmds[2].Action, "no face stops")
}

func TestFollowerNeverForwardWhenTooClose(t *testing.T) {
	driver := &fakeDriver{}
	f := NewFollower(drive.NewApproach(drive.DefaultApproachConfig()), driver).WithLogger(log.Discard())

	for _, offset := range []float64{-1, -0.5, 0, 0.5, 1} {
		s := seen(10)
		s.FaceOffset, s.HasFaceOffset = offset, true
		f.Observe(context.Background(), s)
	}
	for _, cmd := range driver.commands() {
		assert.NotEqual(t, drive.Forward, cmd.Action)
	}
}

func TestFollowerAnnounceCooldown(t *testing.T) {
	speaker := tts.NewMock()
	f := NewFollower(drive.NewApproach(drive.DefaultApproachConfig()), &fakeDriver{}).
		WithLogger(log.Discard()).
		WithAnnouncer(speaker, 3*time.Second)

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }
	ctx := context.Background()

	f.Observe(ctx, seen(200))
	f.wg.Wait()
	require.Equal(t, 1, speaker.CallCount("Speak"))
	assert.Equal(t, SayComeCloser, speaker.LastCall().Text)

	now = now.Add(time.Second)
	f.Observe(ctx, seen(120))
	f.wg.Wait()
	assert.Equal(t, 1, speaker.CallCount("Speak"), "within cooldown")

	now = now.Add(3 * time.Second)
	f.Observe(ctx, seen(20))
	f.wg.Wait()
	require.Equal(t, 2, speaker.CallCount("Speak"))
	assert.Equal(t, SayTooClose, speaker.LastCall().Text)
}

func TestFollowerSkipsWhileSpeaking(t *testing.T) {
	release := make(chan struct{})
	speaker := &tts.Mock{SpeakFunc: func(ctx context.Context, text string) error {
		<-release
		return nil
	}}
	f := NewFollower(drive.NewApproach(drive.DefaultApproachConfig()), &fakeDriver{}).
		WithLogger(log.Discard()).
		WithAnnouncer(speaker, time.Millisecond)

	now := time.Now()
	f.now = func() time.Time { return now }

	f.Observe(context.Background(), seen(200))
	now = now.Add(time.Second)
	f.Observe(context.Background(), seen(200))
	close(release)
	f.wg.Wait()

	assert.Equal(t, 1, speaker.CallCount("Speak"))
}

func TestFollowerRunStopsOnClose(t *testing.T) {
	driver := &fakeDriver{}
	f := NewFollower(drive.NewApproach(drive.DefaultApproachConfig()), driver).WithLogger(log.Discard())

	snaps := make(chan perception.Snapshot, 1)
	snaps <- seen(120)
	close(snaps)

	require.NoError(t, f.Run(context.Background(), snaps))
	cmds := driver.commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, drive.Forward, cmds[0].Action)
	assert.Equal(t, drive.Stop, cmds[1].Action)
}
