package geom

import "math"

// Point2 represents a 2D point
type Point2 struct {
	X, Y float32
}

// Point3 represents a 3D point. Z is a relative depth with no fixed unit.
type Point3 struct {
	X, Y, Z float32
}

// XY drops the depth component
func (p Point3) XY() Point2 {
	return Point2{X: p.X, Y: p.Y}
}

// Rect is an axis-aligned rectangle given by its top-left corner and size.
// Normalized rects are relative to the frame they were produced in and may
// exceed [0,1] until clamped.
type Rect struct {
	X, Y float32 // top-left
	W, H float32
}

// UnitRect is the normalized unit square
var UnitRect = Rect{X: 0, Y: 0, W: 1, H: 1}

// MinMaxRect builds a rect from its min and max coordinates. The size is
// rounded up where needed so that Max() never falls short of (maxX, maxY).
func MinMaxRect(minX, minY, maxX, maxY float32) Rect {
	return Rect{X: minX, Y: minY, W: span(minX, maxX), H: span(minY, maxY)}
}

// RectFromCorners builds a rect from two opposite corners, e.g. the world
// corners of a display surface.
func RectFromCorners(a, b Point2) Rect {
	return MinMaxRect(min(a.X, b.X), min(a.Y, b.Y), max(a.X, b.X), max(a.Y, b.Y))
}

// Min returns the top-left corner
func (r Rect) Min() Point2 {
	return Point2{X: r.X, Y: r.Y}
}

// Max returns the bottom-right corner
func (r Rect) Max() Point2 {
	return Point2{X: r.X + r.W, Y: r.Y + r.H}
}

// Center returns rect center point
func (r Rect) Center() Point2 {
	return Point2{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Area returns rect area
func (r Rect) Area() float32 {
	return r.W * r.H
}

// Aspect returns width over height, or 0 for a zero-height rect
func (r Rect) Aspect() float32 {
	if r.H == 0 {
		return 0
	}
	return r.W / r.H
}

// Empty reports whether the rect has no area
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Expand grows the rect by fx*W on the left and right and fy*H on the top
// and bottom. Negative factors shrink it, never below zero size.
func (r Rect) Expand(fx, fy float32) Rect {
	dx := r.W * fx
	dy := r.H * fy
	return MinMaxRect(r.X-dx, r.Y-dy, r.X+r.W+dx, r.Y+r.H+dy)
}

// Scale resizes the rect about its center
func (r Rect) Scale(sx, sy float32) Rect {
	c := r.Center()
	w := max(r.W*sx, 0)
	h := max(r.H*sy, 0)
	return Rect{X: c.X - w/2, Y: c.Y - h/2, W: w, H: h}
}

// Contains reports whether p lies inside the rect (edges included)
func (r Rect) Contains(p Point2) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// ContainsRect reports whether o lies fully inside the rect
func (r Rect) ContainsRect(o Rect) bool {
	return r.Contains(o.Min()) && r.Contains(o.Max())
}

// Intersect returns the overlapping area of two rects (zero rect if disjoint)
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.W, o.X+o.W)
	y2 := min(r.Y+r.H, o.Y+o.H)
	if x1 >= x2 || y1 >= y2 {
		return Rect{}
	}
	return MinMaxRect(x1, y1, x2, y2)
}

// IoU calculates Intersection over Union of two rects
func (r Rect) IoU(o Rect) float32 {
	inter := r.Intersect(o).Area()
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ClampUnit clips the rect to the unit square
func (r Rect) ClampUnit() Rect {
	c := MinMaxRect(
		clamp(r.X, 0, 1), clamp(r.Y, 0, 1),
		clamp(r.X+r.W, 0, 1), clamp(r.Y+r.H, 0, 1),
	)
	for c.X+c.W > 1 {
		c.W = math.Nextafter32(c.W, 0)
	}
	for c.Y+c.H > 1 {
		c.H = math.Nextafter32(c.H, 0)
	}
	return c
}

// BoundingRect computes the tight rect around the (x, y) of all points.
// No points yields the zero rect.
func BoundingRect(points []Point3) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	return MinMaxRect(minX, minY, maxX, maxY)
}

// span returns hi-lo, widened by whole ulps until lo+span reaches hi
func span(lo, hi float32) float32 {
	w := max(hi-lo, 0)
	for lo+w < hi {
		w = math.Nextafter32(w, float32(math.Inf(1)))
	}
	return w
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
