package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/camera"
	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/logging"
	"github.com/dudu/facetrack/internal/pipeline"
	"github.com/dudu/facetrack/internal/preprocess"
	"github.com/dudu/facetrack/internal/ui"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

type Flags struct {
	ConfigPath string
	SaveConfig string
	Variant    string
	Camera     int
	Video      string
	Image      string
	Provider   string
	Aspect     string
	NoFeedback bool
	NoPreview  bool
	TargetFPS  int
	LogLevel   string
	LogFile    string
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Flags {
	f := Flags{}

	flag.StringVar(&f.ConfigPath, "config", "", "YAML config file")
	flag.StringVar(&f.SaveConfig, "save-config", "", "Write the effective config to this file and exit")
	flag.StringVar(&f.Variant, "variant", "", "Tracking variant: face or pose")
	flag.IntVar(&f.Camera, "camera", -1, "Camera device index")
	flag.IntVar(&f.Camera, "c", -1, "Camera device index (shorthand)")
	flag.StringVar(&f.Video, "video", "", "Video file to track instead of a camera")
	flag.StringVar(&f.Image, "image", "", "Still image to run a single frame on")
	flag.StringVar(&f.Provider, "provider", "", "Execution provider: cpu or coreml")
	flag.StringVar(&f.Aspect, "aspect", "", "Crop aspect mode: fit or fill")
	flag.BoolVar(&f.NoFeedback, "no-feedback", false, "Run the detector on every frame")
	flag.BoolVar(&f.NoPreview, "no-preview", false, "Disable the preview window")
	flag.IntVar(&f.TargetFPS, "fps", 0, "Target frames per second")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&f.LogFile, "log-file", "", "Also write logs to this rotated file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "FaceTrack - Real-time face mesh and pose tracking\n\n")
		fmt.Fprintf(os.Stderr, "Usage: facetrack [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  facetrack --camera 0\n")
		fmt.Fprintf(os.Stderr, "  facetrack --variant pose --video dance.mp4\n")
		fmt.Fprintf(os.Stderr, "  facetrack --image portrait.jpg --log-level debug\n")
	}

	flag.Parse()
	return f
}

// loadConfig layers defaults, the config file, .env / environment and flags
func loadConfig(f Flags) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := config.Default()
	path := f.ConfigPath
	if path == "" {
		if _, err := os.Stat(config.GetConfigPath()); err == nil {
			path = config.GetConfigPath()
		}
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if f.Variant != "" {
		cfg.Tracking.Variant = pipeline.Variant(f.Variant)
	}
	if f.Camera >= 0 {
		cfg.Camera.Device = f.Camera
	}
	if f.Video != "" {
		cfg.Camera.Source = f.Video
	}
	if f.Provider != "" {
		cfg.Runtime.Provider = inference.Provider(f.Provider)
	}
	if f.Aspect != "" {
		mode, err := preprocess.ParseAspectMode(f.Aspect)
		if err != nil {
			return nil, err
		}
		cfg.Tracking.AspectMode = mode
	}
	if f.NoFeedback {
		cfg.Tracking.UseFeedback = false
	}
	if f.NoPreview {
		cfg.Display.Preview = false
	}
	if f.TargetFPS > 0 {
		cfg.Camera.TargetFPS = f.TargetFPS
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(f Flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	if f.SaveConfig != "" {
		return cfg.SaveToFile(f.SaveConfig)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	logger.Info("FaceTrack starting...")

	// Initialize pipeline
	pipelineConfig := cfg.Pipeline()
	pipelineConfig.Logger = logger
	logger.WithFields(logrus.Fields{
		"variant":  pipelineConfig.Variant,
		"provider": pipelineConfig.Provider,
	}).Info("Loading models")
	p, err := pipeline.New(pipelineConfig)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	var window *ui.Window
	if cfg.Display.Preview {
		window = ui.NewWindow("FaceTrack", ui.Overlay{
			Detection: cfg.Display.DrawDetection,
			Landmarks: cfg.Display.DrawLandmarks,
		})
		defer window.Close()
	}

	if f.Image != "" {
		return runImage(f.Image, p, window, logger)
	}
	return runCapture(cfg, p, window, logger)
}

// runImage tracks a single still image and waits for a key
func runImage(path string, p *pipeline.Pipeline, window *ui.Window, logger *logrus.Logger) error {
	mat, img, err := camera.LoadImage(path)
	if err != nil {
		return err
	}
	defer mat.Close()

	det, landmarks, err := p.Process(img)
	if err != nil {
		return err
	}

	fields := logrus.Fields{"found": det != nil, "time": p.LastTiming().Total}
	if landmarks != nil {
		fields["score"] = landmarks.Score
		fields["keypoints"] = len(landmarks.Keypoints)
	}
	logger.WithFields(fields).Info("Processed image")

	if window != nil {
		window.Draw(&mat, det, landmarks, p.State().Mode)
		window.Show(&mat)
		window.WaitKey(0)
	}
	return nil
}

// runCapture tracks frames from a camera or video file until interrupted
func runCapture(cfg *config.Config, p *pipeline.Pipeline, window *ui.Window, logger *logrus.Logger) error {
	var cam *camera.Capture
	var err error
	if cfg.Camera.Source != "" {
		cam, err = camera.NewFileCapture(cfg.Camera.Source)
	} else {
		cam, err = camera.NewCaptureWithResolution(cfg.Camera.Device, cfg.Camera.TargetFPS, cfg.Camera.Width, cfg.Camera.Height)
	}
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer cam.Close()
	logger.WithFields(logrus.Fields{
		"source": cam.Source(),
		"width":  cam.Width(),
		"height": cam.Height(),
		"fps":    cam.FPS(),
	}).Info("Capture opened")
	retry := frameInterval(cam.FPS(), cfg.Camera.TargetFPS)

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Main loop
	frame := gocv.NewMat()
	defer frame.Close()

	logger.Info("Running... Press 'q' to quit")
	defer func() {
		stats := p.Stats()
		fields := logrus.Fields{
			"frames":        stats.Frames,
			"detector_runs": stats.DetectorRuns,
			"lost":          stats.Lost,
		}
		if window != nil {
			fields["display_fps"] = window.FPS()
		}
		logger.WithFields(fields).Info("Shutting down")
	}()

	failures := 0
	for {
		select {
		case <-sigChan:
			return nil
		default:
		}

		img, err := cam.ReadImage(&frame)
		if errors.Is(err, camera.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			failures++
			logger.WithError(err).WithField("failures", failures).Warn("Frame read failed")
			time.Sleep(retry)
			continue
		}
		failures = 0

		det, landmarks, err := p.Process(img)
		if err != nil {
			logger.WithError(err).Warn("Frame failed")
		}

		timing := p.LastTiming()
		logger.WithFields(logrus.Fields{
			"mode":     p.State().Mode,
			"detected": timing.Detected,
			"detect":   timing.Detection,
			"refine":   timing.Refine,
			"total":    timing.Total,
		}).Debug("Frame")

		// Show preview
		if window != nil {
			window.Draw(&frame, det, landmarks, p.State().Mode)
			drawTiming(&frame, timing)
			window.Show(&frame)
			// WaitKey must be called to process window events on macOS
			key := window.WaitKey(1)
			switch key {
			case 'q', 27: // 'q' or ESC
				return nil
			case 'r':
				p.Reset()
			}
		}
	}
}

func drawTiming(frame *gocv.Mat, timing pipeline.Timing) {
	if timing.Total <= 0 {
		return
	}
	text := fmt.Sprintf("D:%.1fms R:%.1fms T:%.1fms",
		float64(timing.Detection.Microseconds())/1000,
		float64(timing.Refine.Microseconds())/1000,
		float64(timing.Total.Microseconds())/1000)
	gocv.PutText(frame, text, image.Pt(10, 90),
		gocv.FontHersheyPlain, 1.5, ui.TextColor, 2)
}
