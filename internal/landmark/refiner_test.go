package landmark

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/preprocess"
)

// fakeEngine is an in-memory engine whose outputs are filled by run
type fakeEngine[In preprocess.Element] struct {
	input     []In
	outputs   [][]float32
	run       func(e *fakeEngine[In]) error
	destroyed int
}

func (e *fakeEngine[In]) Input() []In { return e.input }

func (e *fakeEngine[In]) Run() error {
	if e.run != nil {
		return e.run(e)
	}
	return nil
}

func (e *fakeEngine[In]) Output(index int) []float32 { return e.outputs[index] }

func (e *fakeEngine[In]) Destroy() error {
	e.destroyed++
	return nil
}

var (
	_ inference.Engine[float32, float32] = (*fakeEngine[float32])(nil)
	_ inference.Engine[uint8, float32]   = (*fakeEngine[uint8])(nil)
)

func newFakeFaceMesh() *fakeEngine[float32] {
	return &fakeEngine[float32]{
		input:   make([]float32, faceMeshInputSize*faceMeshInputSize*3),
		outputs: [][]float32{make([]float32, FaceMeshKeypoints*3), make([]float32, 1)},
	}
}

func TestFaceMeshRefine(t *testing.T) {
	e := newFakeFaceMesh()
	e.run = func(e *fakeEngine[float32]) error {
		out := e.outputs[0]
		for i := 0; i < FaceMeshKeypoints; i++ {
			// every point at the crop center, depth of a tenth of the input
			out[i*3] = 96
			out[i*3+1] = 96
			out[i*3+2] = 19.2
		}
		out[0], out[1] = 0, 0 // first point at the crop's top-left
		e.outputs[1][0] = 3
		return nil
	}

	mesh, err := NewFaceMesh(e, RefinerOptions{AspectMode: preprocess.Fit, CropScale: 2})
	require.NoError(t, err)

	frame := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	region := geom.Rect{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}
	l, err := mesh.Refine(frame, region)
	require.NoError(t, err)

	// crop is the region doubled about its center
	assert.InDelta(t, 0.3, l.Crop.X, tol)
	assert.InDelta(t, 0.4, l.Crop.W, tol)

	require.Len(t, l.Keypoints, FaceMeshKeypoints)
	assert.InDelta(t, 0.3, l.Keypoints[0].X, tol)
	assert.InDelta(t, 0.3, l.Keypoints[0].Y, tol)
	assert.InDelta(t, 0.5, l.Keypoints[1].X, tol)
	assert.InDelta(t, 0.5, l.Keypoints[1].Y, tol)
	assert.InDelta(t, 0.04, l.Keypoints[1].Z, tol)
	assert.InDelta(t, sigmoid(3), l.Score, tol)
	assert.Nil(t, l.Scores)

	local := l.Local()
	assert.InDelta(t, 0.5, local[1].X, tol)
	assert.InDelta(t, 0.1, local[1].Z, tol)
}

func TestFaceMeshFillCropsWideRegion(t *testing.T) {
	e := newFakeFaceMesh()
	mesh, err := NewFaceMesh(e, RefinerOptions{AspectMode: preprocess.Fill, CropScale: 1})
	require.NoError(t, err)

	frame := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	l, err := mesh.Refine(frame, geom.Rect{X: 0.1, Y: 0.2, W: 0.4, H: 0.4})
	require.NoError(t, err)

	// 80x40 px region filled to a 40x40 px square
	assert.InDelta(t, 0.2, l.Crop.W, tol)
	assert.InDelta(t, 0.4, l.Crop.H, tol)
	assert.InDelta(t, 0.3, l.Crop.Center().X, tol)
}

func TestFaceMeshShapeValidation(t *testing.T) {
	e := newFakeFaceMesh()
	e.outputs[0] = make([]float32, 1434)

	_, err := NewFaceMesh(e, DefaultFaceMeshOptions())
	assert.ErrorIs(t, err, inference.ErrShapeMismatch)
}

func TestFaceMeshEngineError(t *testing.T) {
	e := newFakeFaceMesh()
	e.run = func(*fakeEngine[float32]) error { return errors.New("boom") }
	mesh, err := NewFaceMesh(e, DefaultFaceMeshOptions())
	require.NoError(t, err)

	_, err = mesh.Refine(image.NewNRGBA(image.Rect(0, 0, 10, 10)), geom.UnitRect)
	assert.ErrorContains(t, err, "boom")

	require.NoError(t, mesh.Close())
	assert.Equal(t, 1, e.destroyed)
}

func TestMoveNetRefine(t *testing.T) {
	e := &fakeEngine[uint8]{
		input:   make([]uint8, 192*192*3),
		outputs: [][]float32{make([]float32, MoveNetJoints*3)},
	}
	var sawPixels bool
	e.run = func(e *fakeEngine[uint8]) error {
		for _, v := range e.input {
			if v != 0 {
				sawPixels = true
				break
			}
		}
		out := e.outputs[0]
		for j := 0; j < MoveNetJoints; j++ {
			out[j*3] = 0.25   // y
			out[j*3+1] = 0.75 // x
			out[j*3+2] = 0.5
		}
		out[Nose*3+2] = 1.0
		return nil
	}

	pose, err := NewMoveNet[uint8](e, 192, DefaultMoveNetOptions())
	require.NoError(t, err)

	frame := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for i := range frame.Pix {
		frame.Pix[i] = 200
	}

	l, err := pose.Refine(frame, geom.UnitRect)
	require.NoError(t, err)
	assert.True(t, sawPixels)

	require.Len(t, l.Keypoints, MoveNetJoints)
	assert.InDelta(t, 0.75, l.Keypoints[LeftHip].X, tol)
	assert.InDelta(t, 0.25, l.Keypoints[LeftHip].Y, tol)
	assert.InDelta(t, (16*0.5+1.0)/17, l.Score, tol)

	require.Len(t, l.Scores, MoveNetJoints)
	assert.InDelta(t, 1.0, l.Scores[Nose], tol)
	assert.InDelta(t, 0.5, l.Scores[RightAnkle], tol)
}

func TestMoveNetShapeValidation(t *testing.T) {
	e := &fakeEngine[float32]{
		input:   make([]float32, 256*256*3),
		outputs: [][]float32{make([]float32, 13*3)},
	}
	_, err := NewMoveNet[float32](e, 256, DefaultMoveNetOptions())
	assert.ErrorIs(t, err, inference.ErrShapeMismatch)

	_, err = NewMoveNet[float32](e, 192, DefaultMoveNetOptions())
	assert.ErrorIs(t, err, inference.ErrShapeMismatch)
}
