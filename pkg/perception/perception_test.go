package perception

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sptcnl/momo/internal/log"
)

type fakeDetector struct {
	faces Faces
	err   error
	block bool
}

func (f *fakeDetector) DetectFaces(ctx context.Context) (Faces, error) {
	if f.block {
		<-ctx.Done()
		return Faces{}, ctx.Err()
	}
	return f.faces, f.err
}

type fakeRanger struct {
	cm     float64
	err    error
	closed bool
}

func (f *fakeRanger) DistanceCM(context.Context) (float64, error) { return f.cm, f.err }
func (f *fakeRanger) Close() error                                { f.closed = true; return nil }

func TestFacesOffset(t *testing.T) {
	t.Run("no faces", func(t *testing.T) {
		_, ok := Faces{}.Offset()
		assert.False(t, ok)
	})

	t.Run("largest face wins", func(t *testing.T) {
		f := Faces{Boxes: []Box{
			{X: 0.0, Y: 0.1, W: 0.1, H: 0.1},  // small, far left
			{X: 0.6, Y: 0.2, W: 0.3, H: 0.3},  // big, right of centre
			{X: 0.45, Y: 0.2, W: 0.1, H: 0.1}, // small, centred
		}}
		off, ok := f.Offset()
		require.True(t, ok)
		assert.InDelta(t, 0.5, off, 1e-9)
		assert.Equal(t, 3, f.Count())
	})

	t.Run("left edge", func(t *testing.T) {
		off, ok := Faces{Boxes: []Box{{X: 0, W: 0}}}.Offset()
		require.True(t, ok)
		assert.Equal(t, -1.0, off)
	})
}

func TestCompositePoll(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("both readings", func(t *testing.T) {
		c := NewComposite(
			&fakeDetector{faces: Faces{Boxes: []Box{{X: 0.4, W: 0.2, H: 0.2}}}},
			&fakeRanger{cm: 42},
			time.Second,
		)
		c.now = func() time.Time { return at }

		s := c.Poll(context.Background())
		assert.True(t, s.FaceDetected)
		assert.Equal(t, 1, s.FaceCount)
		assert.True(t, s.HasFaceOffset)
		assert.InDelta(t, 0.0, s.FaceOffset, 1e-9)
		assert.True(t, s.HasDistance)
		assert.Equal(t, 42.0, s.DistanceCM)
		assert.Equal(t, at, s.Timestamp)
		assert.Empty(t, s.Err)
	})

	t.Run("face failure keeps distance", func(t *testing.T) {
		c := NewComposite(&fakeDetector{err: errors.New("camera unplugged")}, &fakeRanger{cm: 80}, time.Second)
		c.Logger = log.Discard()

		s := c.Poll(context.Background())
		assert.False(t, s.FaceDetected)
		assert.False(t, s.HasFaceOffset)
		assert.True(t, s.HasDistance)
		assert.Contains(t, s.Err, "camera unplugged")
	})

	t.Run("distance failure keeps face", func(t *testing.T) {
		c := NewComposite(&fakeDetector{faces: Faces{Boxes: []Box{{W: 0.1, H: 0.1}}}}, &fakeRanger{err: errors.New("no echo")}, time.Second)

		s := c.Poll(context.Background())
		assert.True(t, s.FaceDetected)
		assert.False(t, s.HasDistance)
		assert.Contains(t, s.Err, "no echo")
	})

	t.Run("slow detector is bounded by timeout", func(t *testing.T) {
		c := NewComposite(&fakeDetector{block: true}, nil, 20*time.Millisecond)

		start := time.Now()
		s := c.Poll(context.Background())
		assert.Less(t, time.Since(start), time.Second)
		assert.False(t, s.FaceDetected)
		assert.Contains(t, s.Err, "deadline")
	})

	t.Run("no sensors", func(t *testing.T) {
		s := NewComposite(nil, nil, 0).Poll(context.Background())
		assert.False(t, s.FaceDetected)
		assert.False(t, s.HasDistance)
		assert.Empty(t, s.Err)
	})
}

func TestCompositeClose(t *testing.T) {
	r := &fakeRanger{}
	c := NewComposite(&fakeDetector{}, r, 0)
	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

func TestSlot(t *testing.T) {
	var empty Slot
	assert.Equal(t, Snapshot{}, empty.Load())

	s := NewSlot()
	assert.False(t, s.Load().FaceDetected)

	s.Store(Snapshot{FaceDetected: true, FaceCount: 2})
	got := s.Load()
	got.FaceCount = 99
	assert.Equal(t, 2, s.Load().FaceCount, "loaded snapshots are copies")
}

func TestSlotConcurrent(t *testing.T) {
	s := NewSlot()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Store(Snapshot{FaceCount: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = s.Load()
		}
	}()
	wg.Wait()
	assert.Equal(t, 999, s.Load().FaceCount)
}

func TestPollerStoresAndFansOut(t *testing.T) {
	src := NewMock(
		Snapshot{FaceDetected: true, FaceCount: 1},
		Snapshot{FaceDetected: false},
	)
	slot := NewSlot()
	p := NewPoller(src, slot, 5*time.Millisecond).WithLogger(log.Discard())
	sub := p.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case s := <-sub:
		assert.True(t, s.FaceDetected, "first poll happens immediately")
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	require.Eventually(t, func() bool { return p.Polls() >= 3 }, time.Second, time.Millisecond)
	assert.False(t, slot.Load().FaceDetected)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	// Subscriber channel is closed after Run returns.
	for range sub {
	}
}

func TestPollerRecoversFromPanic(t *testing.T) {
	src := &Mock{PollFunc: func(context.Context) Snapshot { panic("driver crashed") }}
	slot := NewSlot()
	slot.Store(Snapshot{FaceDetected: true})
	p := NewPoller(src, slot, time.Millisecond).WithLogger(log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Polls() >= 1 }, time.Second, time.Millisecond)
	s := slot.Load()
	assert.False(t, s.FaceDetected)
	assert.Equal(t, "driver crashed", s.Err)
}

func TestPollerRejectsSecondRun(t *testing.T) {
	p := NewPoller(NewMock(), NewSlot(), time.Millisecond).WithLogger(log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Run(ctx) }()
	require.Eventually(t, func() bool { return p.Polls() >= 1 }, time.Second, time.Millisecond)

	assert.Error(t, p.Run(ctx))
	cancel()
}

func TestSlowSubscriberSeesNewest(t *testing.T) {
	ch := make(chan Snapshot, 1)
	offer(ch, Snapshot{FaceCount: 1})
	offer(ch, Snapshot{FaceCount: 2})
	assert.Equal(t, 2, (<-ch).FaceCount)
}
