// calibrate runs the terminal 9-point calibration routine and saves the
// fitted model as a named profile.
//
// The operator fixates each announced screen target; after a settle
// delay the tool samples landmark features for a sampling window,
// averages them, fits the gaze model and stores it with the area of
// interest.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/features"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/landmark"
	"github.com/teslashibe/go-gaze/pkg/store"
)

// defaultAOI covers the whole normalized screen; operators narrow it
// with -aoi for real cockpit layouts.
var defaultAOI = gaze.AOI{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

func main() {
	var (
		configPath = flag.String("config", "gaze.json", "path to JSON config file")
		profile    = flag.String("profile", "", "profile name to save (overrides config)")
		cameraIdx  = flag.Int("camera", -1, "camera device index (overrides config)")
		aoiPath    = flag.String("aoi", "", "JSON file with area-of-interest vertices")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()
	log.Init(*logLevel)

	if err := run(*configPath, *profile, *cameraIdx, *aoiPath); err != nil {
		log.Error("calibration failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, profile string, cameraIdx int, aoiPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if profile != "" {
		cfg.ProfileName = profile
	}
	if cameraIdx >= 0 {
		cfg.CameraIndex = cameraIdx
	}

	aoi := defaultAOI
	if aoiPath != "" {
		if aoi, err = loadAOI(aoiPath); err != nil {
			return err
		}
	}
	if !aoi.Valid() {
		return fmt.Errorf("area of interest needs at least 3 vertices, got %d", len(aoi))
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	detCfg := landmark.DefaultYuNetConfig()
	detCfg.ModelPath = cfg.ModelPath
	det, err := landmark.NewYuNet(detCfg)
	if err != nil {
		return err
	}
	defer det.Close()

	cam, err := camera.Open(cfg.CameraIndex)
	if err != nil {
		return err
	}
	defer cam.Close()

	samples, err := collectSamples(cfg, cam, det)
	if err != nil {
		return err
	}

	model := calibration.NewModel(cfg.CalibrationDegree, cfg.RidgeAlpha)
	rmse, err := model.Fit(samples)
	if err != nil {
		return err
	}
	fmt.Printf("\nFit complete: RMSE %.4f (normalized screen units)\n", rmse)
	if rmse > cfg.RMSWarnThreshold {
		fmt.Printf("WARNING: RMSE above %.3f threshold; consider recalibrating with steadier fixation\n",
			cfg.RMSWarnThreshold)
	}

	blob, err := model.Encode()
	if err != nil {
		return err
	}
	if err := st.SaveCalibration(cfg.ProfileName, blob, rmse, aoi); err != nil {
		return err
	}
	fmt.Printf("Profile %q saved (hash %s)\n", cfg.ProfileName, calibration.Hash(blob))
	return nil
}

// collectSamples walks the operator through the target grid, averaging
// the raw observations per target into one calibration sample.
func collectSamples(cfg config.Config, cam camera.Source, det landmark.Detector) ([]calibration.Sample, error) {
	targets := calibration.TargetGrid()
	settle := time.Duration(cfg.DotSettleMs) * time.Millisecond
	window := time.Duration(cfg.DotSampleMs) * time.Millisecond

	fmt.Printf("Calibration: %d targets, %v settle + %v sampling each.\n",
		len(targets), settle, window)
	fmt.Println("Fixate each announced point until the next one appears.")

	var (
		collector calibration.Collector
		samples   []calibration.Sample
		start     = time.Now()
		lastTs    int64
	)
	for i, target := range targets {
		fmt.Printf("\n[%d/%d] Look at screen position (%.1f, %.1f)\n",
			i+1, len(targets), target.X, target.Y)
		time.Sleep(settle)

		deadline := time.Now().Add(window)
		for time.Now().Before(deadline) {
			frame, _, ok := cam.Frame()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			ts := time.Since(start).Milliseconds()
			if ts <= lastTs {
				ts = lastTs + 1
			}
			lastTs = ts

			obs, err := det.Detect(frame, ts)
			if err != nil || obs == nil || obs.Confidence < cfg.MinConfidence {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			v, err := features.Extract(obs)
			if err != nil {
				continue
			}
			collector.Add(v)
			time.Sleep(20 * time.Millisecond)
		}

		s, err := collector.Finish(target)
		if err != nil {
			// No usable frames for this target; skip it and let the
			// fit decide whether enough targets remain.
			log.Warn("no usable observations for target, skipping",
				"target_x", target.X, "target_y", target.Y, "error", err)
			continue
		}
		fmt.Printf("    captured %d observations\n", s.RawCount)
		samples = append(samples, s)
	}
	return samples, nil
}

func loadAOI(path string) (gaze.AOI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aoi file: %w", err)
	}
	var aoi gaze.AOI
	if err := json.Unmarshal(data, &aoi); err != nil {
		return nil, fmt.Errorf("parse aoi file %s: %w", path, err)
	}
	return aoi, nil
}
