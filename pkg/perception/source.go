package perception

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/telemetry"
)

// DefaultPollTimeout bounds each sub-read of a poll.
const DefaultPollTimeout = 3 * time.Second

// Source yields the latest perception reading on demand.
// Poll never fails; a failed read comes back as a snapshot with nothing
// detected and Err set.
type Source interface {
	Poll(ctx context.Context) Snapshot
}

// FaceDetector captures a frame and finds faces in it.
type FaceDetector interface {
	DetectFaces(ctx context.Context) (Faces, error)
}

// DistanceSensor returns the distance to the nearest obstacle ahead.
type DistanceSensor interface {
	DistanceCM(ctx context.Context) (float64, error)
}

// Composite combines an optional face detector and an optional distance
// sensor into one Source. Either may be nil.
type Composite struct {
	Faces    FaceDetector
	Distance DistanceSensor

	// Timeout bounds each sub-read. Zero means DefaultPollTimeout.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	now func() time.Time
}

// NewComposite creates a source over faces and distance.
func NewComposite(faces FaceDetector, distance DistanceSensor, timeout time.Duration) *Composite {
	return &Composite{
		Faces:    faces,
		Distance: distance,
		Timeout:  timeout,
		Logger:   log.Component("perception"),
	}
}

// Poll reads every configured sensor once. Sub-read failures are logged at
// debug and recorded in Snapshot.Err; the other reading is still reported.
func (c *Composite) Poll(ctx context.Context) Snapshot {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	logger := c.Logger
	if logger == nil {
		logger = log.Discard()
	}

	snap := Snapshot{Timestamp: now()}
	var failures []string

	if c.Faces != nil {
		faces, err := c.detect(ctx)
		if err != nil {
			logger.Debug("face detection failed", "error", err)
			failures = append(failures, "face: "+err.Error())
			c.Metrics.PollFailed(ctx, "face")
		} else {
			snap.FaceCount = faces.Count()
			snap.FaceDetected = snap.FaceCount > 0
			snap.FaceOffset, snap.HasFaceOffset = faces.Offset()
		}
	}

	if c.Distance != nil {
		cm, err := c.measure(ctx)
		if err != nil {
			logger.Debug("distance read failed", "error", err)
			failures = append(failures, "distance: "+err.Error())
			c.Metrics.PollFailed(ctx, "distance")
		} else {
			snap.DistanceCM = cm
			snap.HasDistance = true
		}
	}

	snap.Err = strings.Join(failures, "; ")
	c.Metrics.Polled(ctx)
	return snap
}

func (c *Composite) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultPollTimeout
}

func (c *Composite) detect(ctx context.Context) (Faces, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	return c.Faces.DetectFaces(ctx)
}

func (c *Composite) measure(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	return c.Distance.DistanceCM(ctx)
}

// Close releases the detector and sensor if they hold resources.
func (c *Composite) Close() error {
	var errs []error
	if cl, ok := c.Faces.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	if cl, ok := c.Distance.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

var _ Source = (*Composite)(nil)
