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

// YuNet finds faces with OpenCV's FaceDetectorYN. It is slower than the
// cascade on a Pi but far more robust to side-on faces.
type YuNet struct {
	camera   Camera
	detector gocv.FaceDetectorYN
	mu       sync.Mutex
}

// NewYuNet loads the YuNet ONNX model.
func NewYuNet(camera Camera, cfg Config) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection: yunet model: %w", err)
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.5
	}

	// Input size is reset per frame.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(320, 320),
		float32(cfg.Confidence),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNet{camera: camera, detector: detector}, nil
}

// DetectFaces captures a frame and returns the faces in it.
func (y *YuNet) DetectFaces(ctx context.Context) (perception.Faces, error) {
	frame, err := y.camera.Capture(ctx)
	if err != nil {
		return perception.Faces{}, err
	}
	defer frame.Close()
	return y.Detect(frame)
}

// Detect finds faces in a BGR frame.
func (y *YuNet) Detect(frame gocv.Mat) (perception.Faces, error) {
	if frame.Empty() {
		return perception.Faces{}, ErrNoFrame
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(frame.Cols(), frame.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	y.detector.Detect(frame, &out)

	// Rows are x, y, w, h, five landmark pairs, score.
	rects := make([]image.Rectangle, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		x := int(out.GetFloatAt(r, 0))
		yy := int(out.GetFloatAt(r, 1))
		w := int(out.GetFloatAt(r, 2))
		h := int(out.GetFloatAt(r, 3))
		rects = append(rects, image.Rect(x, yy, x+w, yy+h))
	}
	return normalize(rects, frame.Cols(), frame.Rows()), nil
}

// Close releases the detector. The camera is owned by the caller.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}

var _ perception.FaceDetector = (*YuNet)(nil)
