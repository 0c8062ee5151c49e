package landmark

import (
	"fmt"
	"image"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/preprocess"
)

// FaceMeshKeypoints is the number of points in the face mesh
const FaceMeshKeypoints = 468

const faceMeshInputSize = 192

// FaceMeshSpec is the tensor layout the face mesh model must declare
func FaceMeshSpec(modelPath string, provider inference.Provider) inference.ModelSpec {
	return inference.ModelSpec{
		Path:   modelPath,
		Inputs: []inference.TensorSpec{{Name: "input_1", Shape: []int64{1, faceMeshInputSize, faceMeshInputSize, 3}}},
		Outputs: []inference.TensorSpec{
			{Name: "conv2d_21", Shape: []int64{1, 1, 1, FaceMeshKeypoints * 3}},
			{Name: "conv2d_31", Shape: []int64{1, 1, 1, 1}},
		},
		Provider: provider,
	}
}

// DefaultFaceMeshOptions crops 1.5x the region like insightface landmark models
func DefaultFaceMeshOptions() RefinerOptions {
	return RefinerOptions{AspectMode: preprocess.Fit, CropScale: 1.5}
}

// FaceMesh refines a face region into 468 3D landmarks
type FaceMesh struct {
	engine inference.Engine[float32, float32]
	opts   RefinerOptions
}

// LoadFaceMesh loads the face mesh model and validates its tensors
func LoadFaceMesh(modelPath string, provider inference.Provider, opts RefinerOptions, log logrus.FieldLogger) (*FaceMesh, error) {
	session, err := inference.NewSession[float32, float32](FaceMeshSpec(modelPath, provider), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create face mesh session: %w", err)
	}
	mesh, err := NewFaceMesh(session, opts)
	if err != nil {
		session.Destroy()
		return nil, err
	}
	return mesh, nil
}

// NewFaceMesh creates a refiner on top of an already loaded engine
func NewFaceMesh(engine inference.Engine[float32, float32], opts RefinerOptions) (*FaceMesh, error) {
	if got := len(engine.Input()); got != faceMeshInputSize*faceMeshInputSize*3 {
		return nil, fmt.Errorf("%w: face mesh input has %d elements", inference.ErrShapeMismatch, got)
	}
	if err := detector.CheckCount("face mesh", len(engine.Output(0))/3, FaceMeshKeypoints); err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrShapeMismatch, err)
	}
	return &FaceMesh{engine: engine, opts: opts}, nil
}

// Refine extracts the face mesh inside region
func (f *FaceMesh) Refine(frame image.Image, region geom.Rect) (detector.Landmarks, error) {
	crop := f.opts.cropRegion(frame, region, faceMeshInputSize, faceMeshInputSize)

	input := preprocess.Crop(frame, crop, faceMeshInputSize, faceMeshInputSize)
	preprocess.ToNHWC(input, f.engine.Input(), preprocess.UnitRange)

	if err := f.engine.Run(); err != nil {
		return detector.Landmarks{}, fmt.Errorf("face mesh inference failed: %w", err)
	}

	return detector.Landmarks{
		Keypoints: toFrame(f.postprocess(f.engine.Output(0)), crop),
		Score:     sigmoid(f.engine.Output(1)[0]),
		Crop:      crop,
	}, nil
}

// postprocess converts model output (input pixels) to crop-local normalized points
func (f *FaceMesh) postprocess(output []float32) []geom.Point3 {
	points := make([]geom.Point3, FaceMeshKeypoints)
	size := float32(faceMeshInputSize)
	for i := range points {
		points[i] = geom.Point3{
			X: output[i*3] / size,
			Y: output[i*3+1] / size,
			Z: output[i*3+2] / size,
		}
	}
	return points
}

// Close releases refiner resources
func (f *FaceMesh) Close() error {
	return f.engine.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}
