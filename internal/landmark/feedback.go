package landmark

import (
	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/geom"
)

// Converter derives a pseudo-detection from dense landmarks so the next
// frame's crop can be computed without running the detector
type Converter struct {
	// Margin is added to the landmark bounding box on every side, as a
	// fraction of its width and height
	Margin float32
	// Alignment lists the landmark index groups whose centroids become the
	// detection keypoints
	Alignment [][]int
}

// FaceMeshFeedback uses the eye corner pairs of the face mesh as alignment points
var FaceMeshFeedback = Converter{
	Margin: 0.25,
	Alignment: [][]int{
		{33, 133},  // right eye corners
		{263, 362}, // left eye corners
	},
}

// MoveNetFeedback uses the shoulder and hip centers as alignment points
var MoveNetFeedback = Converter{
	Margin: 0.25,
	Alignment: [][]int{
		{LeftShoulder, RightShoulder},
		{LeftHip, RightHip},
	},
}

// ToDetection builds the detection the next frame is seeded with. The rect
// always contains every landmark; the score is the landmark score.
func (c Converter) ToDetection(l detector.Landmarks) detector.Detection {
	bbox := geom.BoundingRect(l.Keypoints)
	margin := max(c.Margin, 0)
	rect := bbox.Expand(margin, margin)

	keypoints := make([]geom.Point2, len(c.Alignment))
	for i, group := range c.Alignment {
		keypoints[i] = centroid(l.Keypoints, group, rect.Center())
	}

	return detector.Detection{
		Rect:      rect,
		Keypoints: keypoints,
		Score:     l.Score,
	}
}

// centroid averages the (x, y) of the indexed points, skipping indices out of
// range. fallback is returned when no index is usable.
func centroid(points []geom.Point3, indices []int, fallback geom.Point2) geom.Point2 {
	var sumX, sumY float32
	n := 0
	for _, idx := range indices {
		if idx < 0 || idx >= len(points) {
			continue
		}
		sumX += points[idx].X
		sumY += points[idx].Y
		n++
	}
	if n == 0 {
		return fallback
	}
	return geom.Point2{X: sumX / float32(n), Y: sumY / float32(n)}
}
