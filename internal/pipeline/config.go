package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/landmark"
	"github.com/dudu/facetrack/internal/preprocess"
)

// Pose model input element types
const (
	PoseInputUint8   = "uint8"
	PoseInputFloat32 = "float32"
)

// Config holds pipeline configuration
type Config struct {
	Variant           Variant
	DetectorModelPath string // unused by the pose variant
	RefinerModelPath  string
	ORTLibraryPath    string
	Provider          inference.Provider

	UseFeedback         bool
	AspectMode          preprocess.AspectMode
	ConfidenceThreshold float32
	CropScale           float32 // 0 keeps the refiner default

	DetectorScoreThreshold float32
	NMSThreshold           float32

	PoseInputSize int
	PoseInputType string

	// Feedback overrides; nil keeps the variant's converter settings
	FeedbackMargin    *float32
	FeedbackAlignment [][]int

	Logger logrus.FieldLogger
}

// DefaultConfig returns the face tracking configuration
func DefaultConfig() Config {
	det := detector.DefaultBlazeFaceOptions()
	return Config{
		Variant:                VariantFace,
		DetectorModelPath:      "models/face_detection_short_range.onnx",
		RefinerModelPath:       "models/face_landmark.onnx",
		Provider:               inference.ProviderCPU,
		UseFeedback:            true,
		AspectMode:             preprocess.Fit,
		ConfidenceThreshold:    0.5,
		DetectorScoreThreshold: det.ScoreThreshold,
		NMSThreshold:           det.NMSThreshold,
		PoseInputSize:          192,
		PoseInputType:          PoseInputUint8,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	switch c.Variant {
	case VariantFace:
		if c.DetectorModelPath == "" {
			return fmt.Errorf("detector model path is required for the face variant")
		}
	case VariantPose:
		if c.PoseInputSize <= 0 {
			return fmt.Errorf("pose input size must be positive, got %d", c.PoseInputSize)
		}
		if c.PoseInputType != PoseInputUint8 && c.PoseInputType != PoseInputFloat32 {
			return fmt.Errorf("invalid pose input type: %s (use 'uint8' or 'float32')", c.PoseInputType)
		}
	default:
		return fmt.Errorf("invalid variant: %s (use 'face' or 'pose')", c.Variant)
	}

	if c.RefinerModelPath == "" {
		return fmt.Errorf("refiner model path is required")
	}
	if c.Provider != inference.ProviderCPU && c.Provider != inference.ProviderCoreML {
		return fmt.Errorf("invalid provider: %s (use 'cpu' or 'coreml')", c.Provider)
	}
	if c.AspectMode != preprocess.Fit && c.AspectMode != preprocess.Fill {
		return fmt.Errorf("invalid aspect mode: %v", c.AspectMode)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1, got %v", c.ConfidenceThreshold)
	}
	if c.CropScale < 0 {
		return fmt.Errorf("crop scale must not be negative, got %v", c.CropScale)
	}
	if c.DetectorScoreThreshold < 0 || c.DetectorScoreThreshold > 1 {
		return fmt.Errorf("detector score threshold must be between 0 and 1, got %v", c.DetectorScoreThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("NMS threshold must be between 0 and 1, got %v", c.NMSThreshold)
	}
	if c.FeedbackMargin != nil && *c.FeedbackMargin < 0 {
		return fmt.Errorf("feedback margin must not be negative, got %v", *c.FeedbackMargin)
	}
	return nil
}

// refinerOptions returns the variant's crop options with config overrides
func (c Config) refinerOptions() landmark.RefinerOptions {
	opts := landmark.DefaultFaceMeshOptions()
	if c.Variant == VariantPose {
		opts = landmark.DefaultMoveNetOptions()
	}
	opts.AspectMode = c.AspectMode
	if c.CropScale > 0 {
		opts.CropScale = c.CropScale
	}
	return opts
}

// feedback returns the variant's converter with each configured override applied
func (c Config) feedback() landmark.Converter {
	fb := landmark.FaceMeshFeedback
	if c.Variant == VariantPose {
		fb = landmark.MoveNetFeedback
	}
	if c.FeedbackMargin != nil {
		fb.Margin = *c.FeedbackMargin
	}
	if c.FeedbackAlignment != nil {
		fb.Alignment = c.FeedbackAlignment
	}
	return fb
}
