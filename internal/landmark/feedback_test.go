package landmark

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/geom"
)

const tol = 1e-4

func randomLandmarks(r *rand.Rand, n int) detector.Landmarks {
	cx, cy := r.Float32(), r.Float32()
	spread := 0.05 + 0.3*r.Float32()
	points := make([]geom.Point3, n)
	for i := range points {
		points[i] = geom.Point3{
			X: cx + spread*(r.Float32()-0.5),
			Y: cy + spread*(r.Float32()-0.5),
			Z: r.Float32() - 0.5,
		}
	}
	return detector.Landmarks{Keypoints: points, Score: r.Float32()}
}

func TestToDetectionContainsBoundingBox(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	converters := []Converter{FaceMeshFeedback, MoveNetFeedback, {Margin: 0}, {Margin: 1.5}}

	for trial := 0; trial < 2000; trial++ {
		n := 1 + r.Intn(FaceMeshKeypoints)
		l := randomLandmarks(r, n)
		bbox := geom.BoundingRect(l.Keypoints)

		for _, c := range converters {
			det := c.ToDetection(l)
			assert.True(t, det.Rect.ContainsRect(bbox), "trial %d: %v does not contain %v", trial, det.Rect, bbox)
			for _, p := range l.Keypoints {
				assert.True(t, det.Rect.Contains(p.XY()), "trial %d margin %v: %v outside %v", trial, c.Margin, p, det.Rect)
			}
		}
	}
}

func TestToDetectionZeroMarginKeepsEdgePoints(t *testing.T) {
	l := detector.Landmarks{Keypoints: []geom.Point3{{X: 0.3, Y: -0.046300665}, {X: 0.5, Y: 0.10644921}}}
	det := Converter{Margin: 0}.ToDetection(l)
	for _, p := range l.Keypoints {
		assert.True(t, det.Rect.Contains(p.XY()), "%v outside %v", p, det.Rect)
	}
}

func TestToDetectionCarriesScore(t *testing.T) {
	l := detector.Landmarks{Keypoints: []geom.Point3{{X: 0.2, Y: 0.3}}, Score: 0.42}
	det := FaceMeshFeedback.ToDetection(l)
	assert.Equal(t, float32(0.42), det.Score)
}

func TestToDetectionMargin(t *testing.T) {
	l := detector.Landmarks{Keypoints: []geom.Point3{{X: 0.4, Y: 0.4}, {X: 0.6, Y: 0.5}}}
	det := Converter{Margin: 0.5}.ToDetection(l)

	assert.InDelta(t, 0.3, det.Rect.X, tol)
	assert.InDelta(t, 0.35, det.Rect.Y, tol)
	assert.InDelta(t, 0.4, det.Rect.W, tol)
	assert.InDelta(t, 0.2, det.Rect.H, tol)

	negative := Converter{Margin: -0.5}.ToDetection(l)
	assert.InDelta(t, 0.2, negative.Rect.W, tol)
}

func TestToDetectionAlignmentCentroids(t *testing.T) {
	points := make([]geom.Point3, FaceMeshKeypoints)
	points[33] = geom.Point3{X: 0.30, Y: 0.40}
	points[133] = geom.Point3{X: 0.40, Y: 0.42}
	points[263] = geom.Point3{X: 0.70, Y: 0.40}
	points[362] = geom.Point3{X: 0.60, Y: 0.42}

	det := FaceMeshFeedback.ToDetection(detector.Landmarks{Keypoints: points, Score: 0.9})
	require.Len(t, det.Keypoints, 2)
	assert.InDelta(t, 0.35, det.Keypoints[0].X, tol)
	assert.InDelta(t, 0.41, det.Keypoints[0].Y, tol)
	assert.InDelta(t, 0.65, det.Keypoints[1].X, tol)
	assert.InDelta(t, 0.41, det.Keypoints[1].Y, tol)
}

func TestToDetectionOutOfRangeAlignment(t *testing.T) {
	l := detector.Landmarks{Keypoints: []geom.Point3{{X: 0.2, Y: 0.2}, {X: 0.4, Y: 0.6}}}
	det := Converter{Alignment: [][]int{{0, 99}, {-1, 50}}}.ToDetection(l)

	require.Len(t, det.Keypoints, 2)
	assert.Equal(t, geom.Point2{X: 0.2, Y: 0.2}, det.Keypoints[0])
	assert.InDelta(t, 0.3, det.Keypoints[1].X, tol)
	assert.InDelta(t, 0.4, det.Keypoints[1].Y, tol)
}

func TestToDetectionDegenerate(t *testing.T) {
	same := []geom.Point3{{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.5}}
	det := FaceMeshFeedback.ToDetection(detector.Landmarks{Keypoints: same, Score: 0.8})
	assert.Equal(t, geom.Rect{X: 0.5, Y: 0.5}, det.Rect)
	assert.Equal(t, float32(0.8), det.Score)

	empty := MoveNetFeedback.ToDetection(detector.Landmarks{})
	assert.Equal(t, geom.Rect{}, empty.Rect)
	assert.Len(t, empty.Keypoints, 2)
}
