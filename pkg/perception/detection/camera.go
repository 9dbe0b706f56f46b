// Package detection captures frames with OpenCV and finds faces in them.
package detection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sptcnl/momo/internal/proc"
)

// ErrNoFrame is returned when a camera produces an empty frame.
var ErrNoFrame = errors.New("detection: no frame captured")

// Camera produces BGR frames. On success the caller owns the returned Mat
// and must Close it; on error the Mat is zero and must not be used.
type Camera interface {
	Capture(ctx context.Context) (gocv.Mat, error)
	Close() error
}

// Webcam reads frames from an OpenCV capture device (USB webcam or a CSI
// camera exposed through V4L2).
type Webcam struct {
	// busy holds one token while a read is in flight. Reads are serialized
	// so the face detector and emotion classifier can share one device.
	busy  chan struct{}
	read  func(*gocv.Mat) bool
	close func() error
}

// OpenWebcam opens device, a numeric index ("0") or a device path
// ("/dev/video0"), and requests the given frame size.
func OpenWebcam(device string, width, height int) (*Webcam, error) {
	var id any = device
	if n, err := strconv.Atoi(device); err == nil {
		id = n
	}
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("detection: open camera %q: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("detection: camera %q did not open", device)
	}
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return newWebcam(vc.Read, vc.Close), nil
}

func newWebcam(read func(*gocv.Mat) bool, close func() error) *Webcam {
	return &Webcam{busy: make(chan struct{}, 1), read: read, close: close}
}

// Capture reads the next frame. The device read cannot be interrupted, so
// it runs on its own goroutine and Capture returns ctx.Err() as soon as ctx
// ends; a late frame is discarded and the device stays busy until the read
// returns.
func (w *Webcam) Capture(ctx context.Context) (gocv.Mat, error) {
	select {
	case w.busy <- struct{}{}:
	case <-ctx.Done():
		return gocv.Mat{}, ctx.Err()
	}

	type result struct {
		frame gocv.Mat
		ok    bool
	}
	done := make(chan result)
	go func() {
		defer func() { <-w.busy }()
		frame := gocv.NewMat()
		ok := w.read(&frame) && !frame.Empty()
		if !ok {
			frame.Close()
		}
		select {
		case done <- result{frame, ok}:
		case <-ctx.Done():
			if ok {
				frame.Close()
			}
		}
	}()

	select {
	case r := <-done:
		if !r.ok {
			return gocv.Mat{}, ErrNoFrame
		}
		return r.frame, nil
	case <-ctx.Done():
		return gocv.Mat{}, ctx.Err()
	}
}

// Close waits for a read in flight, then releases the capture device.
func (w *Webcam) Close() error {
	w.busy <- struct{}{}
	defer func() { <-w.busy }()
	return w.close()
}

// OutputPlaceholder is replaced by the temporary image path in a
// StillCommand argv.
const OutputPlaceholder = "{output}"

const outputKey = "output"

// StillCommand captures a JPEG with an external tool such as fswebcam or
// libcamera-still and reads it back. Each capture runs one process.
type StillCommand struct {
	Argv   []string
	TmpDir string

	mu sync.Mutex
}

// NewStillCommand creates a still capture camera. argv must contain
// OutputPlaceholder.
func NewStillCommand(argv []string) (*StillCommand, error) {
	if len(argv) == 0 {
		return nil, errors.New("detection: empty capture command")
	}
	if !proc.HasPlaceholder(argv, outputKey) {
		return nil, fmt.Errorf("detection: capture command needs an %s argument", OutputPlaceholder)
	}
	if err := proc.Require(argv[0]); err != nil {
		return nil, fmt.Errorf("detection: capture tool: %w", err)
	}
	return &StillCommand{Argv: argv}, nil
}

// Capture runs the command under ctx and decodes the image it wrote.
func (s *StillCommand) Capture(ctx context.Context) (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := proc.TempPath(s.TmpDir, "momo-still", ".jpg")
	defer os.Remove(path)

	argv := proc.Expand(s.Argv, map[string]string{outputKey: path})
	if _, err := proc.Run(ctx, argv, nil); err != nil {
		return gocv.Mat{}, fmt.Errorf("detection: capture: %w", err)
	}

	frame := gocv.IMRead(path, gocv.IMReadColor)
	if frame.Empty() {
		frame.Close()
		return gocv.Mat{}, ErrNoFrame
	}
	return frame, nil
}

// Close is a no-op; StillCommand holds no device.
func (s *StillCommand) Close() error { return nil }

var (
	_ Camera = (*Webcam)(nil)
	_ Camera = (*StillCommand)(nil)
)
