// Package geom holds the normalized geometry types shared by the tracking
// stages and the mapping between rectangular coordinate frames.
//
// A point is mapped by taking its fractional position inside the source rect,
// optionally clamping that fraction to [0,1], optionally flipping the vertical
// fraction (image space has a top-left origin, most display spaces do not) and
// interpolating into the destination rect.
package geom

// Map moves p from the src frame into the dst frame.
//
// With src == dst and no flip or clamp this is the identity. Mapping back with
// src and dst swapped and the same flip recovers p unless clamping discarded
// information. Intermediate values are float64, so the round trip only loses
// the float32 rounding of the mapped point, magnified by the ratio between the
// two frame sizes.
func Map(p Point2, src, dst Rect, flipY, clampToUnit bool) Point2 {
	fx, fy := fractions(p.X, p.Y, src, flipY, clampToUnit)
	return Point2{
		X: lerp(dst.X, dst.W, fx),
		Y: lerp(dst.Y, dst.H, fy),
	}
}

// MapPoint3 maps the (x, y) of p like Map and keeps the relative depth
// proportional to the horizontal scale between the two frames.
func MapPoint3(p Point3, src, dst Rect, flipY, clampToUnit bool) Point3 {
	fx, fy := fractions(p.X, p.Y, src, flipY, clampToUnit)
	z := p.Z
	if src.W != 0 {
		z = float32(float64(p.Z) * float64(dst.W) / float64(src.W))
	}
	return Point3{
		X: lerp(dst.X, dst.W, fx),
		Y: lerp(dst.Y, dst.H, fy),
		Z: z,
	}
}

// MapRect maps both corners of r and rebuilds the bounding rect in the
// destination frame.
func MapRect(r, src, dst Rect, flipY, clampToUnit bool) Rect {
	a := Map(r.Min(), src, dst, flipY, clampToUnit)
	b := Map(r.Max(), src, dst, flipY, clampToUnit)
	return RectFromCorners(a, b)
}

// fractions returns the position of (x, y) inside src as [0,1] fractions
// (before clamping). A zero-size source axis yields fraction 0.
func fractions(x, y float32, src Rect, flipY, clampToUnit bool) (float64, float64) {
	var fx, fy float64
	if src.W != 0 {
		fx = (float64(x) - float64(src.X)) / float64(src.W)
	}
	if src.H != 0 {
		fy = (float64(y) - float64(src.Y)) / float64(src.H)
	}
	if clampToUnit {
		fx = min(max(fx, 0), 1)
		fy = min(max(fy, 0), 1)
	}
	if flipY {
		fy = 1 - fy
	}
	return fx, fy
}

func lerp(origin, size float32, f float64) float32 {
	return float32(float64(origin) + f*float64(size))
}
