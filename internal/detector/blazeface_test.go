package detector

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/inference"
)

const tol = 1e-4

// fakeEngine is an in-memory engine whose outputs are filled by run
type fakeEngine struct {
	input     []float32
	outputs   [][]float32
	run       func(e *fakeEngine) error
	runs      int
	destroyed int
}

func newFakeBlazeFace() *fakeEngine {
	return &fakeEngine{
		input: make([]float32, blazeFaceInputSize*blazeFaceInputSize*3),
		outputs: [][]float32{
			make([]float32, blazeFaceAnchors*blazeFaceCoords),
			make([]float32, blazeFaceAnchors),
		},
	}
}

func (e *fakeEngine) Input() []float32 { return e.input }

func (e *fakeEngine) Run() error {
	e.runs++
	if e.run != nil {
		return e.run(e)
	}
	return nil
}

func (e *fakeEngine) Output(index int) []float32 { return e.outputs[index] }

func (e *fakeEngine) Destroy() error {
	e.destroyed++
	return nil
}

var _ inference.Engine[float32, float32] = (*fakeEngine)(nil)

func TestAnchorLayout(t *testing.T) {
	anchors := shortRangeAnchors.generate()
	require.Len(t, anchors, blazeFaceAnchors)

	// stride 8 grid: 16x16 cells, 2 anchors each
	assert.InDelta(t, 0.5/16, anchors[0].X, tol)
	assert.Equal(t, anchors[0], anchors[1])
	assert.InDelta(t, 1.5/16, anchors[2].X, tol)
	// stride 16 grid starts after 512 anchors with 6 anchors per cell
	assert.InDelta(t, 0.5/8, anchors[512].X, tol)
	assert.Equal(t, anchors[512], anchors[517])
	assert.InDelta(t, 1.5/8, anchors[518].X, tol)
}

func TestBlazeFaceRejectsWrongInput(t *testing.T) {
	e := newFakeBlazeFace()
	e.input = make([]float32, 10)

	_, err := NewBlazeFace(e, DefaultBlazeFaceOptions())
	assert.ErrorIs(t, err, inference.ErrShapeMismatch)
}

func TestBlazeFaceNoFace(t *testing.T) {
	e := newFakeBlazeFace()
	e.run = func(e *fakeEngine) error {
		for i := range e.outputs[1] {
			e.outputs[1][i] = -10
		}
		return nil
	}
	det, err := NewBlazeFace(e, DefaultBlazeFaceOptions())
	require.NoError(t, err)

	dets, err := det.Detect(image.NewNRGBA(image.Rect(0, 0, 64, 64)))
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Equal(t, 1, e.runs)
}

func TestBlazeFaceEngineError(t *testing.T) {
	e := newFakeBlazeFace()
	e.run = func(*fakeEngine) error { return errors.New("device lost") }
	det, err := NewBlazeFace(e, DefaultBlazeFaceOptions())
	require.NoError(t, err)

	_, err = det.Detect(image.NewNRGBA(image.Rect(0, 0, 64, 64)))
	assert.ErrorContains(t, err, "device lost")
}

func TestBlazeFaceDecode(t *testing.T) {
	e := newFakeBlazeFace()
	det, err := NewBlazeFace(e, DefaultBlazeFaceOptions())
	require.NoError(t, err)

	anchors := shortRangeAnchors.generate()
	scores := make([]float32, blazeFaceAnchors)
	for i := range scores {
		scores[i] = -10
	}
	regs := make([]float32, blazeFaceAnchors*blazeFaceCoords)

	// a 32x32 px face centered 8px right of anchor 600
	const idx = 600
	scores[idx] = 4
	raw := regs[idx*blazeFaceCoords:]
	raw[0], raw[1], raw[2], raw[3] = 8, 0, 32, 32
	raw[4], raw[5] = -8, -4 // right eye

	// square frame, so the input covers the unit square exactly
	dets := det.decode(regs, scores, geom.UnitRect)
	require.Len(t, dets, 1)

	d := dets[0]
	a := anchors[idx]
	assert.InDelta(t, a.X+8.0/128-0.125, d.Rect.X, tol)
	assert.InDelta(t, a.Y-0.125, d.Rect.Y, tol)
	assert.InDelta(t, 0.25, d.Rect.W, tol)
	assert.InDelta(t, 0.25, d.Rect.H, tol)
	assert.InDelta(t, sigmoid(4), d.Score, tol)
	require.Len(t, d.Keypoints, BlazeFaceKeypoints)
	assert.InDelta(t, a.X-8.0/128, d.Keypoints[0].X, tol)
	assert.InDelta(t, a.Y-4.0/128, d.Keypoints[0].Y, tol)
}

func TestBlazeFaceDecodeLetterboxed(t *testing.T) {
	e := newFakeBlazeFace()
	det, err := NewBlazeFace(e, DefaultBlazeFaceOptions())
	require.NoError(t, err)

	scores := make([]float32, blazeFaceAnchors)
	for i := range scores {
		scores[i] = -10
	}
	regs := make([]float32, blazeFaceAnchors*blazeFaceCoords)

	// anchor 0 sits at (0.5/16, 0.5/16), in the top padding of a wide frame
	scores[0] = 5
	regs[2], regs[3] = 16, 16

	covered := geom.Rect{X: 0, Y: -0.5, W: 1, H: 2}
	dets := det.decode(regs, scores, covered)
	require.Len(t, dets, 1)

	r := dets[0].Rect
	assert.True(t, geom.UnitRect.ContainsRect(r), "rect %v escapes the frame", r)
	for _, kp := range dets[0].Keypoints {
		assert.True(t, covered.Contains(kp))
	}
}

func TestBlazeFaceClose(t *testing.T) {
	e := newFakeBlazeFace()
	det, err := NewBlazeFace(e, DefaultBlazeFaceOptions())
	require.NoError(t, err)

	require.NoError(t, det.Close())
	assert.Equal(t, 1, e.destroyed)
}

func TestFullFrame(t *testing.T) {
	dets, err := FullFrame{}.Detect(image.NewNRGBA(image.Rect(0, 0, 4, 3)))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, geom.UnitRect, dets[0].Rect)

	dets, err = FullFrame{}.Detect(image.NewNRGBA(image.Rectangle{}))
	require.NoError(t, err)
	assert.Empty(t, dets)
}
