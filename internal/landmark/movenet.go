package landmark

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/preprocess"
)

// MoveNet joint indices (COCO order)
const (
	Nose          = 0
	LeftEye       = 1
	RightEye      = 2
	LeftEar       = 3
	RightEar      = 4
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10
	LeftHip       = 11
	RightHip      = 12
	LeftKnee      = 13
	RightKnee     = 14
	LeftAnkle     = 15
	RightAnkle    = 16
	MoveNetJoints = 17
)

// MoveNetSpec is the tensor layout a single-pose MoveNet model must declare:
// one (y, x, score) triple per joint
func MoveNetSpec(modelPath string, inputSize int, provider inference.Provider) inference.ModelSpec {
	return inference.ModelSpec{
		Path:     modelPath,
		Inputs:   []inference.TensorSpec{{Name: "input", Shape: []int64{1, int64(inputSize), int64(inputSize), 3}}},
		Outputs:  []inference.TensorSpec{{Name: "output_0", Shape: []int64{1, 1, MoveNetJoints, 3}}},
		Provider: provider,
	}
}

// DefaultMoveNetOptions keeps the whole region and pads to a square
func DefaultMoveNetOptions() RefinerOptions {
	return RefinerOptions{AspectMode: preprocess.Fit, CropScale: 1}
}

// MoveNet refines a person region into 17 pose joints. T is the model's
// input element type: uint8 for the quantized variants, float32 otherwise.
type MoveNet[T preprocess.Element] struct {
	engine    inference.Engine[T, float32]
	inputSize int
	opts      RefinerOptions
}

// LoadMoveNet loads a single-pose MoveNet model (Lightning 192 or Thunder 256)
func LoadMoveNet[T preprocess.Element](modelPath string, inputSize int, provider inference.Provider, opts RefinerOptions, log logrus.FieldLogger) (*MoveNet[T], error) {
	session, err := inference.NewSession[T, float32](MoveNetSpec(modelPath, inputSize, provider), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create MoveNet session: %w", err)
	}
	pose, err := NewMoveNet[T](session, inputSize, opts)
	if err != nil {
		session.Destroy()
		return nil, err
	}
	return pose, nil
}

// NewMoveNet creates a pose refiner on top of an already loaded engine
func NewMoveNet[T preprocess.Element](engine inference.Engine[T, float32], inputSize int, opts RefinerOptions) (*MoveNet[T], error) {
	if got := len(engine.Input()); got != inputSize*inputSize*3 {
		return nil, fmt.Errorf("%w: MoveNet input has %d elements, expected %d", inference.ErrShapeMismatch, got, inputSize*inputSize*3)
	}
	if got := len(engine.Output(0)); got != MoveNetJoints*3 {
		return nil, fmt.Errorf("%w: MoveNet output has %d elements, expected %d", inference.ErrShapeMismatch, got, MoveNetJoints*3)
	}
	return &MoveNet[T]{engine: engine, inputSize: inputSize, opts: opts}, nil
}

// Refine estimates the pose inside region. Scores holds each joint's own
// score; the landmark score is their mean.
func (m *MoveNet[T]) Refine(frame image.Image, region geom.Rect) (detector.Landmarks, error) {
	crop := m.opts.cropRegion(frame, region, m.inputSize, m.inputSize)

	input := preprocess.Crop(frame, crop, m.inputSize, m.inputSize)
	preprocess.ToNHWC(input, m.engine.Input(), preprocess.Raw)

	if err := m.engine.Run(); err != nil {
		return detector.Landmarks{}, fmt.Errorf("MoveNet inference failed: %w", err)
	}

	output := m.engine.Output(0)
	local := make([]geom.Point3, MoveNetJoints)
	jointScores := make([]float32, MoveNetJoints)
	scores := make([]float64, MoveNetJoints)
	for i := range local {
		local[i] = geom.Point3{X: output[i*3+1], Y: output[i*3]}
		jointScores[i] = output[i*3+2]
		scores[i] = float64(jointScores[i])
	}

	return detector.Landmarks{
		Keypoints: toFrame(local, crop),
		Scores:    jointScores,
		Score:     float32(stat.Mean(scores, nil)),
		Crop:      crop,
	}, nil
}

// Close releases refiner resources
func (m *MoveNet[T]) Close() error {
	return m.engine.Destroy()
}
