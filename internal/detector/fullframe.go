package detector

import (
	"image"

	"github.com/dudu/facetrack/internal/geom"
)

// FullFrame is a detector that always reports the whole frame. It seeds
// single-subject refiners that can run on the full image first and then
// track from their own landmarks.
type FullFrame struct{}

// Detect returns one detection covering the frame
func (FullFrame) Detect(frame image.Image) ([]Detection, error) {
	if frame.Bounds().Empty() {
		return nil, nil
	}
	return []Detection{{Rect: geom.UnitRect, Score: 1}}, nil
}

// Close is a no-op
func (FullFrame) Close() error {
	return nil
}
