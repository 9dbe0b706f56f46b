package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sptcnl/momo/pkg/perception"
)

// Config holds detector configuration.
type Config struct {
	CascadePath  string  // Haar cascade XML
	ModelPath    string  // YuNet ONNX model
	ScaleFactor  float64 // cascade pyramid step (default 1.2)
	MinNeighbors int     // cascade neighbours required (default 5)
	MinSizePx    int     // smallest face side in pixels (default 30)
	Confidence   float64 // YuNet score threshold (default 0.5)
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		CascadePath:  "/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
		ModelPath:    "models/face_detection_yunet.onnx",
		ScaleFactor:  1.2,
		MinNeighbors: 5,
		MinSizePx:    30,
		Confidence:   0.5,
	}
}

// Cascade finds faces with an OpenCV Haar cascade.
type Cascade struct {
	camera     Camera
	classifier gocv.CascadeClassifier
	cfg        Config
	mu         sync.Mutex
}

// NewCascade loads the cascade file. A missing or invalid file is a fatal
// init error.
func NewCascade(camera Camera, cfg Config) (*Cascade, error) {
	if _, err := os.Stat(cfg.CascadePath); err != nil {
		return nil, fmt.Errorf("detection: cascade file: %w", err)
	}
	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = 1.2
	}
	if cfg.MinNeighbors <= 0 {
		cfg.MinNeighbors = 5
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("detection: cannot load cascade %s", cfg.CascadePath)
	}
	return &Cascade{camera: camera, classifier: classifier, cfg: cfg}, nil
}

// DetectFaces captures a frame and returns the faces in it.
func (c *Cascade) DetectFaces(ctx context.Context) (perception.Faces, error) {
	frame, err := c.camera.Capture(ctx)
	if err != nil {
		return perception.Faces{}, err
	}
	defer frame.Close()
	return c.Detect(frame)
}

// Detect finds faces in a BGR frame.
func (c *Cascade) Detect(frame gocv.Mat) (perception.Faces, error) {
	if frame.Empty() {
		return perception.Faces{}, ErrNoFrame
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	minSize := image.Pt(c.cfg.MinSizePx, c.cfg.MinSizePx)
	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(gray, c.cfg.ScaleFactor, c.cfg.MinNeighbors, 0, minSize, image.Point{})
	c.mu.Unlock()

	return normalize(rects, frame.Cols(), frame.Rows()), nil
}

// Close releases the classifier. The camera is owned by the caller.
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}

func normalize(rects []image.Rectangle, cols, rows int) perception.Faces {
	if cols <= 0 || rows <= 0 {
		return perception.Faces{}
	}
	w, h := float64(cols), float64(rows)
	boxes := make([]perception.Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, perception.Box{
			X: float64(r.Min.X) / w,
			Y: float64(r.Min.Y) / h,
			W: float64(r.Dx()) / w,
			H: float64(r.Dy()) / h,
		})
	}
	return perception.Faces{Boxes: boxes}
}

var _ perception.FaceDetector = (*Cascade)(nil)
