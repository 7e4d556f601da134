// Package config provides configuration for the gaze pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds all tunable parameters for the gaze pipeline.
// A Config is injected at construction time and never mutated mid-session.
type Config struct {
	// Camera
	CameraIndex int `json:"camera_index"` // Webcam device index
	FPSTarget   int `json:"fps_target"`   // Pipeline iterations per second

	// Pipeline
	MinConfidence float64 `json:"min_confidence"` // Samples below this classify as UNKNOWN
	EMAAlpha      float64 `json:"ema_alpha"`      // EMA weight for new gaze sample (higher = more responsive)
	StableMs      float64 `json:"stable_ms"`      // Time a candidate state must hold before committing

	// Auto-pause
	AutoPauseSeconds float64 `json:"auto_pause_seconds"` // Flag results after this long without a confident face

	// Calibration
	CalibrationDegree int     `json:"calibration_degree"` // Polynomial degree for the gaze model
	RidgeAlpha        float64 `json:"ridge_alpha"`        // L2 regularization strength
	RMSWarnThreshold  float64 `json:"rms_warn_threshold"` // Warn operator if fit RMSE exceeds this
	DotSettleMs       int     `json:"dot_settle_ms"`      // Wait per calibration target before sampling
	DotSampleMs       int     `json:"dot_sample_ms"`      // Sampling duration per calibration target

	// Detection
	ModelPath string `json:"model_path"` // Path to the face detection ONNX model

	// Session
	ProfileName string `json:"profile_name"` // Calibration profile to load
	DBPath      string `json:"db_path"`      // SQLite database path
}

// Default returns the recommended configuration.
func Default() Config {
	return Config{
		CameraIndex: 0,
		FPSTarget:   30,

		MinConfidence: 0.30,
		EMAAlpha:      0.30,
		StableMs:      200,

		AutoPauseSeconds: 3.0,

		CalibrationDegree: 2,
		RidgeAlpha:        1.0,
		RMSWarnThreshold:  0.05,
		DotSettleMs:       900,
		DotSampleMs:       1200,

		ModelPath: "models/face_detection_yunet.onnx",

		ProfileName: "default",
		DBPath:      "gaze.db",
	}
}

// Validate returns an error describing the first invalid field, if any.
func (c Config) Validate() error {
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("ema_alpha must be in (0,1], got %v", c.EMAAlpha)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.StableMs < 0 {
		return fmt.Errorf("stable_ms must be >= 0, got %v", c.StableMs)
	}
	if c.CalibrationDegree < 1 {
		return fmt.Errorf("calibration_degree must be >= 1, got %d", c.CalibrationDegree)
	}
	if c.RidgeAlpha <= 0 {
		return fmt.Errorf("ridge_alpha must be > 0, got %v", c.RidgeAlpha)
	}
	if c.FPSTarget <= 0 {
		return fmt.Errorf("fps_target must be > 0, got %d", c.FPSTarget)
	}
	return nil
}

// Load reads a Config from a JSON file. Missing file returns defaults;
// fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the Config to a JSON file.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
