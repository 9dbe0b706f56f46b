// Package perception turns camera frames and range readings into Snapshots,
// the point-in-time view of the world every other component acts on.
package perception

import (
	"fmt"
	"time"
)

// Snapshot is an immutable point-in-time perception reading.
// Copies are independent; nothing mutates a Snapshot after it is built.
type Snapshot struct {
	FaceDetected bool `json:"face_detected"`
	FaceCount    int  `json:"face_count"`

	// FaceOffset is the horizontal position of the most prominent face,
	// -1 at the left edge of the frame to +1 at the right edge.
	// Valid only when HasFaceOffset is true.
	FaceOffset    float64 `json:"face_offset"`
	HasFaceOffset bool    `json:"has_face_offset"`

	// DistanceCM is valid only when HasDistance is true.
	DistanceCM  float64 `json:"distance_cm"`
	HasDistance bool    `json:"has_distance"`

	Timestamp time.Time `json:"timestamp"`

	// Err describes the last sub-read failure, for diagnostics only.
	Err string `json:"error,omitempty"`
}

// NoDetection is the snapshot substituted when a poll fails.
func NoDetection(t time.Time) Snapshot {
	return Snapshot{Timestamp: t}
}

// Distance returns the distance reading and whether it is valid.
func (s Snapshot) Distance() (float64, bool) {
	return s.DistanceCM, s.HasDistance
}

func (s Snapshot) String() string {
	dist := "n/a"
	if s.HasDistance {
		dist = fmt.Sprintf("%.1fcm", s.DistanceCM)
	}
	return fmt.Sprintf("faces=%d distance=%s", s.FaceCount, dist)
}

// Box is a detected face bounding box, normalized to 0..1 of the frame.
type Box struct {
	X, Y float64 // top-left corner
	W, H float64
}

// Center returns the center point of the box.
func (b Box) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the normalized area of the box.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Faces is the result of one face detection pass.
type Faces struct {
	Boxes []Box
}

// Count returns the number of faces found.
func (f Faces) Count() int {
	return len(f.Boxes)
}

// Largest returns the box with the biggest area, the face nearest the camera.
func (f Faces) Largest() (Box, bool) {
	if len(f.Boxes) == 0 {
		return Box{}, false
	}
	best := f.Boxes[0]
	for _, b := range f.Boxes[1:] {
		if b.Area() > best.Area() {
			best = b
		}
	}
	return best, true
}

// Offset returns the horizontal center of the largest face mapped to
// [-1, 1], with -1 at the left edge of the frame.
func (f Faces) Offset() (float64, bool) {
	b, ok := f.Largest()
	if !ok {
		return 0, false
	}
	cx, _ := b.Center()
	return clamp(cx*2-1, -1, 1), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
