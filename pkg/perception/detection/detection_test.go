package detection

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestNormalize(t *testing.T) {
	faces := normalize([]image.Rectangle{
		image.Rect(160, 120, 320, 360),
		image.Rect(0, 0, 64, 48),
	}, 640, 480)

	require.Equal(t, 2, faces.Count())
	assert.Equal(t, 0.25, faces.Boxes[0].X)
	assert.Equal(t, 0.25, faces.Boxes[0].Y)
	assert.Equal(t, 0.25, faces.Boxes[0].W)
	assert.Equal(t, 0.5, faces.Boxes[0].H)

	off, ok := faces.Offset()
	require.True(t, ok)
	assert.InDelta(t, -0.25, off, 1e-9)
}

func TestNormalizeEmptyFrame(t *testing.T) {
	faces := normalize([]image.Rectangle{image.Rect(0, 0, 10, 10)}, 0, 0)
	assert.Equal(t, 0, faces.Count())
}

func TestNewStillCommandValidation(t *testing.T) {
	t.Run("empty argv", func(t *testing.T) {
		_, err := NewStillCommand(nil)
		assert.Error(t, err)
	})

	t.Run("missing placeholder", func(t *testing.T) {
		_, err := NewStillCommand([]string{"true", "--save", "/tmp/x.jpg"})
		assert.Error(t, err)
	})

	t.Run("missing tool", func(t *testing.T) {
		_, err := NewStillCommand([]string{"definitely-not-a-capture-tool", OutputPlaceholder})
		assert.Error(t, err)
	})
}

func TestStillCommandFailingTool(t *testing.T) {
	cam, err := NewStillCommand([]string{"false", OutputPlaceholder})
	require.NoError(t, err)

	_, err = cam.Capture(context.Background())
	assert.Error(t, err)
}

func TestStillCommandReadsImage(t *testing.T) {
	src := filepath.Join(t.TempDir(), "frame.png")
	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	require.True(t, gocv.IMWrite(src, img))

	cam, err := NewStillCommand([]string{"cp", src, OutputPlaceholder})
	require.NoError(t, err)
	cam.TmpDir = t.TempDir()

	frame, err := cam.Capture(context.Background())
	require.NoError(t, err)
	defer frame.Close()
	assert.Equal(t, 64, frame.Cols())
	assert.Equal(t, 48, frame.Rows())

	left, err := os.ReadDir(cam.TmpDir)
	require.NoError(t, err)
	assert.Empty(t, left, "temporary capture is removed")
}

func TestNewCascadeMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CascadePath = "/nonexistent/haarcascade.xml"
	_, err := NewCascade(nil, cfg)
	assert.Error(t, err)
}

func TestCascadeBlankFrame(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := os.Stat(cfg.CascadePath); err != nil {
		t.Skip("Haar cascade not installed, skipping test")
	}

	c, err := NewCascade(nil, cfg)
	require.NoError(t, err)
	defer c.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	faces, err := c.Detect(frame)
	require.NoError(t, err)
	assert.Equal(t, 0, faces.Count())
}

func TestNewYuNetMissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"
	_, err := NewYuNet(nil, cfg)
	assert.Error(t, err)
}

// stuckReader simulates a capture device whose read hangs until released.
func stuckReader(release <-chan struct{}) func(*gocv.Mat) bool {
	return func(m *gocv.Mat) bool {
		<-release
		m.Close()
		*m = gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
		return true
	}
}

func TestWebcamCaptureHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	w := newWebcam(stuckReader(release), func() error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := w.Capture(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// The device is still busy, so a second capture also gives up on time.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = w.Capture(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, w.Close())
}

func TestWebcamCaptureFrame(t *testing.T) {
	release := make(chan struct{})
	close(release)
	w := newWebcam(stuckReader(release), func() error { return nil })

	frame, err := w.Capture(context.Background())
	require.NoError(t, err)
	defer frame.Close()
	assert.Equal(t, 4, frame.Rows())
}

func TestWebcamEmptyFrame(t *testing.T) {
	w := newWebcam(func(*gocv.Mat) bool { return false }, func() error { return nil })

	_, err := w.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}
