package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/pipeline"
)

var (
	green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	yellow = color.RGBA{R: 255, G: 220, B: 0, A: 255}
	cyan   = color.RGBA{R: 0, G: 220, B: 255, A: 255}
	red    = color.RGBA{R: 255, G: 60, B: 60, A: 255}

	// TextColor is used for status text drawn over the frame
	TextColor = green
)

// LowScore is the keypoint score below which a landmark is drawn in red
const LowScore = 0.3

// Overlay selects what is drawn on top of the frame
type Overlay struct {
	Detection bool
	Landmarks bool
}

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	overlay    Overlay
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a new preview window
func NewWindow(name string, overlay Overlay) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(1280, 720)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		overlay:   overlay,
		lastFrame: time.Now(),
	}
}

// Draw renders the tracking result onto frame
func (w *Window) Draw(frame *gocv.Mat, det *detector.Detection, landmarks *detector.Landmarks, mode pipeline.Mode) {
	pixels := geom.Rect{W: float32(frame.Cols()), H: float32(frame.Rows())}

	if w.overlay.Detection && det != nil {
		box := geom.MapRect(det.Rect, geom.UnitRect, pixels, false, false)
		gocv.Rectangle(frame, toImageRect(box), yellow, 2)
		for _, kp := range det.Keypoints {
			gocv.Circle(frame, toImagePoint(geom.Map(kp, geom.UnitRect, pixels, false, false)), 4, yellow, -1)
		}
	}

	if w.overlay.Landmarks && landmarks != nil {
		radius := 1
		if len(landmarks.Keypoints) < 50 {
			radius = 4
		}
		for i, kp := range landmarks.Keypoints {
			p := geom.Map(kp.XY(), geom.UnitRect, pixels, false, true)
			gocv.Circle(frame, toImagePoint(p), radius, keypointColor(landmarks.Scores, i), -1)
		}
	}

	status := mode.String()
	statusColor := green
	if det == nil {
		status = "no subject"
		statusColor = red
	}
	gocv.PutText(frame, status, image.Pt(10, 60),
		gocv.FontHersheyPlain, 1.5, statusColor, 2)
}

// Show displays a frame and updates FPS counter
func (w *Window) Show(frame *gocv.Mat) {
	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	// Draw FPS on frame
	fpsText := fmt.Sprintf("FPS: %.1f", w.fps)
	gocv.PutText(frame, fpsText, image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, green, 2)

	w.window.IMShow(*frame)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}

// keypointColor picks red for a keypoint whose own score is below LowScore.
// Models without per-keypoint scores draw every point in cyan.
func keypointColor(scores []float32, i int) color.RGBA {
	if i < len(scores) && scores[i] < LowScore {
		return red
	}
	return cyan
}

func toImagePoint(p geom.Point2) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}

func toImageRect(r geom.Rect) image.Rectangle {
	lo, hi := r.Min(), r.Max()
	return image.Rect(int(lo.X+0.5), int(lo.Y+0.5), int(hi.X+0.5), int(hi.Y+0.5))
}
