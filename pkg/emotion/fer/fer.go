// Package fer classifies facial expressions with a FER+ ONNX model run
// through OpenCV's DNN module.
package fer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/perception/detection"
)

const provider = "fer"

// DefaultInputSize is the FER+ input edge in pixels.
const DefaultInputSize = 64

// ClassNames is the FER+ output order.
var ClassNames = []string{"neutral", "happiness", "surprise", "sadness", "anger", "disgust", "fear", "contempt"}

// ErrNoFace is returned when a face finder is configured and sees nobody.
var ErrNoFace = errors.New("fer: no face in frame")

// FaceFinder locates faces in a frame. *detection.Cascade and
// *detection.YuNet satisfy it.
type FaceFinder interface {
	Detect(frame gocv.Mat) (perception.Faces, error)
}

// Classifier runs the FER+ network on the largest face in each frame.
type Classifier struct {
	camera detection.Camera
	faces  FaceFinder
	size   int

	mu  sync.Mutex
	net gocv.Net
}

// New loads the model. faces may be nil, in which case the whole frame is
// classified. The camera is owned by the caller.
func New(camera detection.Camera, faces FaceFinder, modelPath string, inputSize int) (*Classifier, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, emotion.WrapError(provider, fmt.Errorf("model: %w", err))
	}
	if inputSize <= 0 {
		inputSize = DefaultInputSize
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, emotion.WrapError(provider, fmt.Errorf("failed to load model from %s", modelPath))
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Classifier{camera: camera, faces: faces, size: inputSize, net: net}, nil
}

// Classify captures a frame and classifies it.
func (c *Classifier) Classify(ctx context.Context) (emotion.Label, error) {
	frame, err := c.camera.Capture(ctx)
	if err != nil {
		return emotion.Neutral, emotion.WrapError(provider, err)
	}
	defer frame.Close()
	return c.ClassifyFrame(frame)
}

// ClassifyFrame classifies a BGR frame.
func (c *Classifier) ClassifyFrame(frame gocv.Mat) (emotion.Label, error) {
	if frame.Empty() {
		return emotion.Neutral, emotion.WrapError(provider, detection.ErrNoFrame)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	input := gray
	if c.faces != nil {
		faces, err := c.faces.Detect(frame)
		if err != nil {
			return emotion.Neutral, emotion.WrapError(provider, err)
		}
		box, ok := faces.Largest()
		if !ok {
			return emotion.Neutral, emotion.WrapError(provider, ErrNoFace)
		}
		rect := pixelRect(box, gray.Cols(), gray.Rows())
		if rect.Empty() {
			return emotion.Neutral, emotion.WrapError(provider, ErrNoFace)
		}
		region := gray.Region(rect)
		defer region.Close()
		input = region
	}

	// FER+ takes raw 0..255 grey levels.
	blob := gocv.BlobFromImage(input, 1.0, image.Pt(c.size, c.size), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.mu.Lock()
	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	c.mu.Unlock()
	defer out.Close()

	scores, err := out.DataPtrFloat32()
	if err != nil {
		return emotion.Neutral, emotion.WrapError(provider, err)
	}
	return labelFor(scores)
}

// Close releases the network.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}

func labelFor(scores []float32) (emotion.Label, error) {
	if len(scores) < len(ClassNames) {
		return emotion.Neutral, emotion.WrapError(provider, fmt.Errorf("expected %d scores, got %d", len(ClassNames), len(scores)))
	}
	best := 0
	for i := 1; i < len(ClassNames); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	l, _ := emotion.Normalize(ClassNames[best])
	return l, nil
}

func pixelRect(b perception.Box, cols, rows int) image.Rectangle {
	r := image.Rect(
		int(b.X*float64(cols)),
		int(b.Y*float64(rows)),
		int((b.X+b.W)*float64(cols)),
		int((b.Y+b.H)*float64(rows)),
	)
	return r.Intersect(image.Rect(0, 0, cols, rows))
}

var _ emotion.Classifier = (*Classifier)(nil)
