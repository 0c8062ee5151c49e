// Package landmark holds the dense landmark refiners and the converter that
// turns their output back into a detection for the next frame.
package landmark

import (
	"image"

	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/preprocess"
)

// RefinerOptions controls how a refiner cuts its input out of the frame
type RefinerOptions struct {
	AspectMode preprocess.AspectMode
	CropScale  float32 // region size multiplier, applied about its center
}

// cropRegion scales region about its center and reconciles it with the model
// input aspect. The result is the frame-normalized area fed to the model.
func (o RefinerOptions) cropRegion(frame image.Image, region geom.Rect, inW, inH int) geom.Rect {
	scale := o.CropScale
	if scale <= 0 {
		scale = 1
	}
	b := frame.Bounds()
	return o.AspectMode.Adjust(region.Scale(scale, scale), b.Dx(), b.Dy(), inW, inH)
}

// toFrame maps crop-local normalized points into frame-normalized space
func toFrame(local []geom.Point3, crop geom.Rect) []geom.Point3 {
	out := make([]geom.Point3, len(local))
	for i, p := range local {
		out[i] = geom.MapPoint3(p, geom.UnitRect, crop, false, false)
	}
	return out
}
