package pipeline

import (
	"fmt"
	"image"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/geom"
)

// Variant selects the model pair the pipeline tracks with
type Variant string

const (
	// VariantFace runs BlazeFace detection and FaceMesh refinement
	VariantFace Variant = "face"
	// VariantPose runs MoveNet single pose seeded from the full frame
	VariantPose Variant = "pose"
)

// Mode is the tracking state
type Mode int

const (
	// ModeDetecting runs the detector on the next frame
	ModeDetecting Mode = iota
	// ModeTracking seeds the next frame from the previous landmarks
	ModeTracking
)

func (m Mode) String() string {
	switch m {
	case ModeDetecting:
		return "detecting"
	case ModeTracking:
		return "tracking"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Detector interface for full-frame subject detection. An empty result with
// a nil error means no subject was found.
type Detector interface {
	Detect(frame image.Image) ([]detector.Detection, error)
	Close() error
}

// Refiner interface for dense landmark extraction inside a frame region
type Refiner interface {
	Refine(frame image.Image, region geom.Rect) (detector.Landmarks, error)
	Close() error
}

// Feedback interface for turning landmarks into the next frame's detection
type Feedback interface {
	ToDetection(landmarks detector.Landmarks) detector.Detection
}
