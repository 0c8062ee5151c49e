package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrClosed is returned when reading from a closed capture
var ErrClosed = errors.New("capture is closed")

// ErrEndOfStream is returned when a video file has no more frames
var ErrEndOfStream = errors.New("end of stream")

// Capture manages webcam or video file capture
type Capture struct {
	video     *gocv.VideoCapture
	source    string
	targetFPS int
	width     int
	height    int
	file      bool
	mu        sync.Mutex
}

// NewCapture creates a new camera capture from device with default 720p resolution
func NewCapture(deviceID int, targetFPS int) (*Capture, error) {
	return NewCaptureWithResolution(deviceID, targetFPS, 1280, 720)
}

// NewCaptureWithResolution creates a new camera capture with specified resolution
func NewCaptureWithResolution(deviceID int, targetFPS int, width, height int) (*Capture, error) {
	video, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}

	// Set camera properties
	if width > 0 && height > 0 {
		video.Set(gocv.VideoCaptureFrameWidth, float64(width))
		video.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	video.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	return newCapture(video, fmt.Sprintf("camera %d", deviceID), targetFPS, false), nil
}

// NewFileCapture opens a video file. Frames are read at the file's own rate.
func NewFileCapture(path string) (*Capture, error) {
	video, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !video.IsOpened() {
		video.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}

	fps := int(video.Get(gocv.VideoCaptureFPS))
	return newCapture(video, path, fps, true), nil
}

func newCapture(video *gocv.VideoCapture, source string, fps int, file bool) *Capture {
	// Get actual dimensions (camera may not support requested resolution)
	return &Capture{
		video:     video,
		source:    source,
		targetFPS: fps,
		width:     int(video.Get(gocv.VideoCaptureFrameWidth)),
		height:    int(video.Get(gocv.VideoCaptureFrameHeight)),
		file:      file,
	}
}

// Read captures a frame into the provided Mat
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.video == nil {
		return false
	}

	return c.video.Read(frame) && !frame.Empty()
}

// ReadImage captures a frame into mat and returns it as an image for the
// tracking pipeline
func (c *Capture) ReadImage(mat *gocv.Mat) (image.Image, error) {
	c.mu.Lock()
	closed := c.video == nil
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if !c.Read(mat) {
		if c.file {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("failed to read frame from %s", c.source)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Source describes where frames come from
func (c *Capture) Source() string {
	return c.source
}

// FPS returns the requested or file frame rate
func (c *Capture) FPS() int {
	return c.targetFPS
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.video != nil {
		err := c.video.Close()
		c.video = nil
		return err
	}
	return nil
}

// LoadImage reads a still image from disk into a Mat and its image form
func LoadImage(path string) (gocv.Mat, image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, nil, fmt.Errorf("failed to load image: %s", path)
	}

	img, err := mat.ToImage()
	if err != nil {
		mat.Close()
		return gocv.Mat{}, nil, fmt.Errorf("failed to convert image: %w", err)
	}
	return mat, img, nil
}
