package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/pipeline"
	"github.com/dudu/facetrack/internal/preprocess"
)

// Config holds the application configuration
type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Models   ModelsConfig   `yaml:"models"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Camera   CameraConfig   `yaml:"camera"`
	Display  DisplayConfig  `yaml:"display"`
	Log      LogConfig      `yaml:"log"`
}

// TrackingConfig holds the tracking loop parameters
type TrackingConfig struct {
	Variant             pipeline.Variant      `yaml:"variant"`
	UseFeedback         bool                  `yaml:"use_feedback"`
	AspectMode          preprocess.AspectMode `yaml:"aspect_mode"`
	ConfidenceThreshold float32               `yaml:"confidence_threshold"`
	CropScale           float32               `yaml:"crop_scale"`
	FeedbackMargin      *float32              `yaml:"feedback_margin,omitempty"`
}

// ModelsConfig holds model locations and detector settings
type ModelsConfig struct {
	Detector       string  `yaml:"detector"`
	FaceMesh       string  `yaml:"face_mesh"`
	MoveNet        string  `yaml:"movenet"`
	MoveNetSize    int     `yaml:"movenet_size"`
	MoveNetInput   string  `yaml:"movenet_input"`
	ScoreThreshold float32 `yaml:"score_threshold"`
	NMSThreshold   float32 `yaml:"nms_threshold"`
}

// RuntimeConfig holds ONNX Runtime settings
type RuntimeConfig struct {
	LibraryPath string             `yaml:"library_path"`
	Provider    inference.Provider `yaml:"provider"`
}

// CameraConfig holds capture settings
type CameraConfig struct {
	Device    int    `yaml:"device"`
	Source    string `yaml:"source"` // video file; overrides device
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	TargetFPS int    `yaml:"target_fps"`
}

// DisplayConfig holds preview window settings
type DisplayConfig struct {
	Preview       bool `yaml:"preview"`
	DrawDetection bool `yaml:"draw_detection"`
	DrawLandmarks bool `yaml:"draw_landmarks"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns a configuration with default values
func Default() *Config {
	p := pipeline.DefaultConfig()
	return &Config{
		Tracking: TrackingConfig{
			Variant:             p.Variant,
			UseFeedback:         p.UseFeedback,
			AspectMode:          p.AspectMode,
			ConfidenceThreshold: p.ConfidenceThreshold,
		},
		Models: ModelsConfig{
			Detector:       p.DetectorModelPath,
			FaceMesh:       p.RefinerModelPath,
			MoveNet:        "models/movenet_singlepose_lightning.onnx",
			MoveNetSize:    p.PoseInputSize,
			MoveNetInput:   p.PoseInputType,
			ScoreThreshold: p.DetectorScoreThreshold,
			NMSThreshold:   p.NMSThreshold,
		},
		Runtime: RuntimeConfig{
			Provider: p.Provider,
		},
		Camera: CameraConfig{
			Width:     1280,
			Height:    720,
			TargetFPS: 30,
		},
		Display: DisplayConfig{
			Preview:       true,
			DrawDetection: true,
			DrawLandmarks: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from FACETRACK_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("FACETRACK_ORT_LIBRARY"); v != "" {
		c.Runtime.LibraryPath = v
	}
	if v := os.Getenv("FACETRACK_PROVIDER"); v != "" {
		c.Runtime.Provider = inference.Provider(v)
	}
	if v := os.Getenv("FACETRACK_MODEL_DIR"); v != "" {
		c.Models.Detector = filepath.Join(v, filepath.Base(c.Models.Detector))
		c.Models.FaceMesh = filepath.Join(v, filepath.Base(c.Models.FaceMesh))
		c.Models.MoveNet = filepath.Join(v, filepath.Base(c.Models.MoveNet))
	}
	if v := os.Getenv("FACETRACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FACETRACK_CAMERA"); v != "" {
		device, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FACETRACK_CAMERA must be a device index: %w", err)
		}
		c.Camera.Device = device
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Pipeline().Validate(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}

	if c.Tracking.FeedbackMargin != nil && *c.Tracking.FeedbackMargin < 0 {
		return fmt.Errorf("tracking.feedback_margin must not be negative")
	}

	if c.Camera.Device < 0 {
		return fmt.Errorf("camera.device must not be negative")
	}

	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("camera.width and camera.height must not be negative")
	}

	if c.Camera.TargetFPS <= 0 {
		return fmt.Errorf("camera.target_fps must be positive")
	}

	return nil
}

// Pipeline converts the file configuration into a pipeline configuration
func (c *Config) Pipeline() pipeline.Config {
	p := pipeline.Config{
		Variant:                c.Tracking.Variant,
		DetectorModelPath:      c.Models.Detector,
		RefinerModelPath:       c.Models.FaceMesh,
		ORTLibraryPath:         c.Runtime.LibraryPath,
		Provider:               c.Runtime.Provider,
		UseFeedback:            c.Tracking.UseFeedback,
		AspectMode:             c.Tracking.AspectMode,
		ConfidenceThreshold:    c.Tracking.ConfidenceThreshold,
		CropScale:              c.Tracking.CropScale,
		DetectorScoreThreshold: c.Models.ScoreThreshold,
		NMSThreshold:           c.Models.NMSThreshold,
		PoseInputSize:          c.Models.MoveNetSize,
		PoseInputType:          c.Models.MoveNetInput,
		FeedbackMargin:         c.Tracking.FeedbackMargin,
	}
	if c.Tracking.Variant == pipeline.VariantPose {
		p.RefinerModelPath = c.Models.MoveNet
	}

	return p
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./facetrack.yaml"
	}
	return filepath.Join(home, ".config", "facetrack", "config.yaml")
}
