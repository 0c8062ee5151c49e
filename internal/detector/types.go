package detector

import (
	"fmt"

	"github.com/dudu/facetrack/internal/geom"
)

// Detection is one candidate from a detector, in frame-normalized space
type Detection struct {
	Rect      geom.Rect
	Keypoints []geom.Point2 // sparse alignment points, fixed count per model
	Score     float32
}

// Clone returns a copy that shares no memory with d
func (d Detection) Clone() Detection {
	d.Keypoints = append([]geom.Point2(nil), d.Keypoints...)
	return d
}

// Landmarks is the dense result of one refiner pass.
// Keypoints are in frame-normalized space; Crop is the frame region the
// refiner actually read, so crop-local coordinates are
// geom.MapPoint3(p, l.Crop, geom.UnitRect, false, false).
type Landmarks struct {
	Keypoints []geom.Point3
	Scores    []float32 // per-keypoint confidence; nil when the model has none
	Score     float32
	Crop      geom.Rect
}

// Clone returns a copy that shares no memory with l
func (l Landmarks) Clone() Landmarks {
	l.Keypoints = append([]geom.Point3(nil), l.Keypoints...)
	if l.Scores != nil {
		l.Scores = append([]float32(nil), l.Scores...)
	}
	return l
}

// Local returns the keypoints in crop-local normalized space
func (l Landmarks) Local() []geom.Point3 {
	local := make([]geom.Point3, len(l.Keypoints))
	for i, p := range l.Keypoints {
		local[i] = geom.MapPoint3(p, l.Crop, geom.UnitRect, false, false)
	}
	return local
}

// CheckCount validates a keypoint count against the model's fixed count
func CheckCount(kind string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: expected %d keypoints, got %d", kind, want, got)
	}
	return nil
}
