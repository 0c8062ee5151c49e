package pipeline

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/geom"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/landmark"
)

// State is the tracking state carried between frames
type State struct {
	Mode          Mode
	LastDetection *detector.Detection
	LastLandmarks *detector.Landmarks
}

// Timing holds performance timing information
type Timing struct {
	Detection time.Duration
	Refine    time.Duration
	Feedback  time.Duration
	Total     time.Duration
	Detected  bool // detector ran on this frame
}

// Stats counts pipeline work since creation or the last Reset
type Stats struct {
	Frames       int
	DetectorRuns int
	RefinerRuns  int
	NoDetection  int
	Lost         int // refinements under the confidence threshold
}

// Pipeline runs the detect/refine tracking loop over successive frames.
// It is not safe for concurrent use.
type Pipeline struct {
	config      Config
	detector    Detector
	refiner     Refiner
	feedback    Feedback
	log         *logrus.Entry
	state       State
	lastTiming  Timing
	stats       Stats
	ownsRuntime bool
	closed      bool
}

// New creates a tracking pipeline and loads the models for config.Variant
func New(config Config) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize ONNX Runtime
	initialized := inference.Initialized()
	if err := inference.Initialize(config.ORTLibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize inference: %w", err)
	}

	p := newPipeline(config)
	p.ownsRuntime = !initialized
	p.feedback = config.feedback()

	if err := p.loadModels(); err != nil {
		p.Close()
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"variant":  config.Variant,
		"provider": config.Provider,
		"feedback": config.UseFeedback,
	}).Info("Pipeline ready")
	return p, nil
}

// NewWithStages creates a pipeline around already constructed stages. The
// pipeline takes ownership of det and ref.
func NewWithStages(config Config, det Detector, ref Refiner, fb Feedback) (*Pipeline, error) {
	if det == nil || ref == nil {
		return nil, errors.New("detector and refiner are required")
	}
	if config.ConfidenceThreshold < 0 || config.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be between 0 and 1, got %v", config.ConfidenceThreshold)
	}

	p := newPipeline(config)
	p.detector = det
	p.refiner = ref
	p.feedback = fb
	if fb == nil {
		p.feedback = config.feedback()
	}
	return p, nil
}

func newPipeline(config Config) *Pipeline {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{
		config: config,
		log:    logger.WithField("session_id", uuid.NewString()),
	}
}

// loadModels creates the detector and refiner for the configured variant
func (p *Pipeline) loadModels() error {
	c := p.config
	opts := c.refinerOptions()

	switch c.Variant {
	case VariantFace:
		det, err := detector.LoadBlazeFace(c.DetectorModelPath, c.Provider, detector.BlazeFaceOptions{
			ScoreThreshold: c.DetectorScoreThreshold,
			NMSThreshold:   c.NMSThreshold,
		}, p.log)
		if err != nil {
			return fmt.Errorf("failed to create detector: %w", err)
		}
		p.detector = det

		mesh, err := landmark.LoadFaceMesh(c.RefinerModelPath, c.Provider, opts, p.log)
		if err != nil {
			return fmt.Errorf("failed to create refiner: %w", err)
		}
		p.refiner = mesh

	case VariantPose:
		p.detector = detector.FullFrame{}

		var ref Refiner
		var err error
		if c.PoseInputType == PoseInputUint8 {
			ref, err = landmark.LoadMoveNet[uint8](c.RefinerModelPath, c.PoseInputSize, c.Provider, opts, p.log)
		} else {
			ref, err = landmark.LoadMoveNet[float32](c.RefinerModelPath, c.PoseInputSize, c.Provider, opts, p.log)
		}
		if err != nil {
			return fmt.Errorf("failed to create refiner: %w", err)
		}
		p.refiner = ref
	}
	return nil
}

// Process runs one tracking step on frame. It returns the current detection
// (the landmark-derived seed while tracking) and the landmarks, or two nils
// when nothing was found or the refinement fell under the threshold.
func (p *Pipeline) Process(frame image.Image) (*detector.Detection, *detector.Landmarks, error) {
	if p.closed {
		return nil, nil, errors.New("pipeline is closed")
	}

	totalStart := time.Now()
	var timing Timing
	defer func() {
		timing.Total = time.Since(totalStart)
		p.lastTiming = timing
	}()
	p.stats.Frames++

	// Detect when there is nothing to track from
	if p.state.LastDetection == nil || !p.config.UseFeedback {
		detectStart := time.Now()
		dets, err := p.detector.Detect(frame)
		timing.Detection = time.Since(detectStart)
		timing.Detected = true
		p.stats.DetectorRuns++

		if err != nil {
			p.resetState()
			return nil, nil, fmt.Errorf("detection failed: %w", err)
		}
		if len(dets) == 0 {
			p.stats.NoDetection++
			p.resetState()
			p.log.Debug("No subject detected")
			return nil, nil, nil
		}

		first := dets[0].Clone()
		p.state.LastDetection = &first
	}

	// Refine inside the current region
	region := p.state.LastDetection.Rect
	refineStart := time.Now()
	landmarks, err := p.refiner.Refine(frame, region)
	timing.Refine = time.Since(refineStart)
	p.stats.RefinerRuns++

	if err != nil {
		p.resetState()
		return nil, nil, fmt.Errorf("refinement failed: %w", err)
	}

	if landmarks.Score < p.config.ConfidenceThreshold {
		p.stats.Lost++
		if p.state.Mode == ModeTracking {
			p.log.WithField("score", landmarks.Score).Debug("Lost track")
		}
		p.resetState()
		return nil, nil, nil
	}
	p.state.LastLandmarks = &landmarks

	if p.config.UseFeedback {
		feedbackStart := time.Now()
		next := p.feedback.ToDetection(landmarks)
		timing.Feedback = time.Since(feedbackStart)

		p.state.LastDetection = &next
		if p.state.Mode != ModeTracking {
			p.log.WithFields(logrus.Fields{
				"score":  landmarks.Score,
				"region": regionFields(next.Rect),
			}).Debug("Tracking started")
		}
		p.state.Mode = ModeTracking
	}

	return p.current()
}

// current returns copies of the last results
func (p *Pipeline) current() (*detector.Detection, *detector.Landmarks, error) {
	s := p.State()
	return s.LastDetection, s.LastLandmarks, nil
}

// State returns a copy of the tracking state
func (p *Pipeline) State() State {
	s := State{Mode: p.state.Mode}
	if p.state.LastDetection != nil {
		d := p.state.LastDetection.Clone()
		s.LastDetection = &d
	}
	if p.state.LastLandmarks != nil {
		l := p.state.LastLandmarks.Clone()
		s.LastLandmarks = &l
	}
	return s
}

// Reset drops the tracking state so the next frame runs the detector
func (p *Pipeline) Reset() {
	p.resetState()
	p.stats = Stats{}
	p.lastTiming = Timing{}
}

func (p *Pipeline) resetState() {
	p.state = State{Mode: ModeDetecting}
}

// LastTiming returns timing from last Process call
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// Stats returns counters since creation or the last Reset
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Close releases pipeline resources. It is safe to call more than once and
// on a pipeline whose construction failed part way.
func (p *Pipeline) Close() error {
	if p == nil || p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("detector: %w", err))
		}
	}
	if p.refiner != nil {
		if err := p.refiner.Close(); err != nil {
			errs = append(errs, fmt.Errorf("refiner: %w", err))
		}
	}

	if p.ownsRuntime {
		if err := inference.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}

	p.resetState()
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %w", errors.Join(errs...))
	}
	return nil
}

func regionFields(r geom.Rect) logrus.Fields {
	return logrus.Fields{"x": r.X, "y": r.Y, "w": r.W, "h": r.H}
}
