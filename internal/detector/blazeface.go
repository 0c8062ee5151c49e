package detector

import (
	"fmt"
	"image"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/preprocess"
)

const (
	// BlazeFaceKeypoints is the number of alignment points per face:
	// right eye, left eye, nose tip, mouth center, right ear, left ear
	BlazeFaceKeypoints = 6

	blazeFaceInputSize = 128
	blazeFaceAnchors   = 896
	blazeFaceCoords    = 4 + 2*BlazeFaceKeypoints
)

// BlazeFaceSpec is the tensor layout the short-range face detector must declare
func BlazeFaceSpec(modelPath string, provider inference.Provider) inference.ModelSpec {
	return inference.ModelSpec{
		Path:     modelPath,
		Inputs:   []inference.TensorSpec{{Name: "input", Shape: []int64{1, blazeFaceInputSize, blazeFaceInputSize, 3}}},
		Outputs: []inference.TensorSpec{
			{Name: "regressors", Shape: []int64{1, blazeFaceAnchors, blazeFaceCoords}},
			{Name: "classificators", Shape: []int64{1, blazeFaceAnchors, 1}},
		},
		Provider: provider,
	}
}

// BlazeFaceOptions holds detector thresholds
type BlazeFaceOptions struct {
	ScoreThreshold float32
	NMSThreshold   float32
}

// DefaultBlazeFaceOptions returns the thresholds used by the face pipeline
func DefaultBlazeFaceOptions() BlazeFaceOptions {
	return BlazeFaceOptions{ScoreThreshold: 0.5, NMSThreshold: 0.3}
}

// BlazeFace implements the short-range BlazeFace face detector
type BlazeFace struct {
	engine  inference.Engine[float32, float32]
	anchors []anchor
	opts    BlazeFaceOptions
}

// LoadBlazeFace loads the detector model and validates its tensors
func LoadBlazeFace(modelPath string, provider inference.Provider, opts BlazeFaceOptions, log logrus.FieldLogger) (*BlazeFace, error) {
	session, err := inference.NewSession[float32, float32](BlazeFaceSpec(modelPath, provider), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create BlazeFace session: %w", err)
	}
	det, err := NewBlazeFace(session, opts)
	if err != nil {
		session.Destroy()
		return nil, err
	}
	return det, nil
}

// NewBlazeFace creates a detector on top of an already loaded engine
func NewBlazeFace(engine inference.Engine[float32, float32], opts BlazeFaceOptions) (*BlazeFace, error) {
	anchors := shortRangeAnchors.generate()
	if len(anchors) != blazeFaceAnchors {
		return nil, fmt.Errorf("anchor generator produced %d anchors, expected %d", len(anchors), blazeFaceAnchors)
	}
	if got := len(engine.Input()); got != blazeFaceInputSize*blazeFaceInputSize*3 {
		return nil, fmt.Errorf("%w: BlazeFace input has %d elements", inference.ErrShapeMismatch, got)
	}
	return &BlazeFace{
		engine:  engine,
		anchors: anchors,
		opts:    opts,
	}, nil
}

// Detect finds faces in a frame. The result is ordered by score, best
// first, and is empty when no face clears the score threshold.
func (b *BlazeFace) Detect(frame image.Image) ([]Detection, error) {
	input, covered := preprocess.Letterbox(frame, blazeFaceInputSize, blazeFaceInputSize)
	preprocess.ToNHWC(input, b.engine.Input(), preprocess.SignedRange)

	if err := b.engine.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	dets := b.decode(b.engine.Output(0), b.engine.Output(1), covered)
	return nms(dets, b.opts.NMSThreshold), nil
}

// decode turns raw regressors and scores into frame-normalized detections.
// covered is the frame area the letterboxed input spans.
func (b *BlazeFace) decode(regressors, scores []float32, covered geom.Rect) []Detection {
	var dets []Detection
	scale := float32(blazeFaceInputSize)

	for i, a := range b.anchors {
		score := sigmoid(clamp(scores[i], -100, 100))
		if score < b.opts.ScoreThreshold {
			continue
		}

		raw := regressors[i*blazeFaceCoords : (i+1)*blazeFaceCoords]
		cx := raw[0]/scale + a.X
		cy := raw[1]/scale + a.Y
		w := raw[2] / scale
		h := raw[3] / scale
		box := geom.Rect{X: cx - w/2, Y: cy - h/2, W: w, H: h}

		keypoints := make([]geom.Point2, BlazeFaceKeypoints)
		for k := range keypoints {
			p := geom.Point2{X: raw[4+2*k]/scale + a.X, Y: raw[5+2*k]/scale + a.Y}
			keypoints[k] = geom.Map(p, geom.UnitRect, covered, false, true)
		}

		dets = append(dets, Detection{
			Rect:      geom.MapRect(box, geom.UnitRect, covered, false, true).ClampUnit(),
			Keypoints: keypoints,
			Score:     score,
		})
	}

	return dets
}

// Close releases detector resources
func (b *BlazeFace) Close() error {
	return b.engine.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
