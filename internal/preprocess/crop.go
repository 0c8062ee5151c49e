// Package preprocess turns frames into model input buffers: it reconciles a
// region with the model's aspect ratio, crops and resizes it, and packs the
// pixels into a tensor layout.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/dudu/facetrack/internal/geom"
)

// AspectMode is the policy for fitting a region to the model input aspect
type AspectMode int

const (
	// Fit keeps the whole region and pads the short side
	Fit AspectMode = iota
	// Fill crops the long side to match the model aspect
	Fill
)

func (m AspectMode) String() string {
	switch m {
	case Fit:
		return "fit"
	case Fill:
		return "fill"
	}
	return fmt.Sprintf("AspectMode(%d)", int(m))
}

// ParseAspectMode parses "fit" or "fill" (case insensitive)
func ParseAspectMode(s string) (AspectMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fit":
		return Fit, nil
	case "fill":
		return Fill, nil
	}
	return Fit, fmt.Errorf("invalid aspect mode %q (use 'fit' or 'fill')", s)
}

// MarshalText implements encoding.TextMarshaler
func (m AspectMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *AspectMode) UnmarshalText(text []byte) error {
	mode, err := ParseAspectMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Adjust reshapes a normalized region of a frameW x frameH frame so that its
// pixel aspect matches inW x inH, keeping the region center.
func (m AspectMode) Adjust(region geom.Rect, frameW, frameH, inW, inH int) geom.Rect {
	if frameW <= 0 || frameH <= 0 || inW <= 0 || inH <= 0 {
		return region
	}
	target := float32(inW) / float32(inH)
	pw := region.W * float32(frameW)
	ph := region.H * float32(frameH)
	if pw <= 0 && ph <= 0 {
		return region
	}

	tooWide := ph <= 0 || pw/ph > target
	switch {
	case tooWide && m == Fit:
		ph = pw / target
	case tooWide && m == Fill:
		pw = ph * target
	case m == Fit:
		pw = ph * target
	default:
		ph = pw / target
	}

	c := region.Center()
	w := pw / float32(frameW)
	h := ph / float32(frameH)
	return geom.Rect{X: c.X - w/2, Y: c.Y - h/2, W: w, H: h}
}

// Crop extracts a normalized region of frame and resizes it to w x h.
// Parts of the region outside the frame are black. Only the in-frame part is
// resampled, so the cost does not grow with the region size.
func Crop(frame image.Image, region geom.Rect, w, h int) *image.NRGBA {
	canvas := imaging.New(w, h, color.NRGBA{A: 255})

	b := frame.Bounds()
	xs, ok := cropSpan(float64(region.X), float64(region.W), b.Dx(), w)
	if !ok {
		return canvas
	}
	ys, ok := cropSpan(float64(region.Y), float64(region.H), b.Dy(), h)
	if !ok {
		return canvas
	}

	inside := image.Rect(xs.src0, ys.src0, xs.src1, ys.src1).Add(b.Min)
	part := imaging.Resize(imaging.Crop(frame, inside), xs.dst1-xs.dst0, ys.dst1-ys.dst0, imaging.Linear)
	return imaging.Paste(canvas, part, image.Pt(xs.dst0, ys.dst0))
}

// span1D is the in-frame pixel range of one crop axis and where it lands in
// the output
type span1D struct {
	src0, src1 int
	dst0, dst1 int
}

// cropSpan intersects the normalized range [start, start+size) with a frame
// axis of n pixels and scales the overlap into an output axis of out pixels
func cropSpan(start, size float64, n, out int) (span1D, bool) {
	lo := start * float64(n)
	hi := (start + size) * float64(n)
	if !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || n <= 0 || out <= 0 {
		return span1D{}, false
	}

	src0 := int(math.Round(max(lo, 0)))
	src1 := int(math.Round(min(hi, float64(n))))
	if src1 <= src0 {
		return span1D{}, false
	}

	scale := float64(out) / (hi - lo)
	dst0 := int(math.Round((float64(src0) - lo) * scale))
	dst1 := int(math.Round((float64(src1) - lo) * scale))
	dst0 = min(max(dst0, 0), out)
	dst1 = min(max(dst1, 0), out)
	if dst1 <= dst0 {
		return span1D{}, false
	}
	return span1D{src0: src0, src1: src1, dst0: dst0, dst1: dst1}, true
}

// Letterbox fits the whole frame into a w x h input with padding. The
// returned rect is the frame-normalized area the input covers; model outputs
// in input-normalized space map back with geom.Map(p, geom.UnitRect, covered, ...).
func Letterbox(frame image.Image, w, h int) (*image.NRGBA, geom.Rect) {
	b := frame.Bounds()
	covered := Fit.Adjust(geom.UnitRect, b.Dx(), b.Dy(), w, h)
	return Crop(frame, covered, w, h), covered
}
