// gazed runs a live gaze classification session headless: loads a
// calibration profile, drives the camera pipeline, persists results and
// serves the dashboard until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/landmark"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
	"github.com/teslashibe/go-gaze/pkg/sink"
	"github.com/teslashibe/go-gaze/pkg/store"
	"github.com/teslashibe/go-gaze/pkg/web"
)

func main() {
	var (
		configPath = flag.String("config", "gaze.json", "path to JSON config file")
		profile    = flag.String("profile", "", "calibration profile (overrides config)")
		cameraIdx  = flag.Int("camera", -1, "camera device index (overrides config)")
		addr       = flag.String("addr", ":8080", "dashboard listen address")
		collector  = flag.String("collector", "", "optional ws:// URL of a remote collector")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()
	log.Init(*logLevel)

	if err := run(*configPath, *profile, *cameraIdx, *addr, *collector); err != nil {
		log.Error("gazed failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, profile string, cameraIdx int, addr, collector string) error {
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

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.LoadCalibration(cfg.ProfileName)
	if err != nil {
		return fmt.Errorf("load calibration (run calibrate first?): %w", err)
	}
	model, err := calibration.Decode(rec.Blob)
	if err != nil {
		return err
	}
	log.Info("calibration loaded",
		"profile", rec.Profile, "rmse", rec.RMSE, "hash", rec.Hash)

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

	// Sinks get their own context so they can flush after the pipeline
	// has stopped.
	sinkCtx, sinkCancel := context.WithCancel(context.Background())
	defer sinkCancel()

	storeSink := sink.NewStore(st)
	storeSink.Run(sinkCtx)
	sinks := []pipeline.Sink{storeSink}

	var remote *sink.Remote
	if collector != "" {
		remote = sink.NewRemote(collector)
		remote.Run(sinkCtx)
		sinks = append(sinks, remote)
	}

	coord, err := pipeline.New(cfg, cam, det, model, rec.AOI, sink.NewMulti(sinks...))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(addr, st)
	srv.StatusFn = func() web.Status {
		return web.Status{
			Running:    true,
			SessionID:  coord.SessionID(),
			Profile:    cfg.ProfileName,
			ModelHash:  rec.Hash,
			AutoPaused: coord.AutoPaused(),
			Dropped:    coord.Dropped(),
		}
	}
	srv.MarkerFn = coord.AddMarker
	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Error("dashboard server failed", "error", err)
		}
	}()

	if err := coord.Start(ctx); err != nil {
		return err
	}
	sessionID := coord.SessionID()
	storeSink.SetSession(sessionID)
	if err := st.BeginSession(sessionID, cfg.ProfileName, rec.Hash, time.Now()); err != nil {
		return err
	}

	// Forward results to dashboard viewers.
	go func() {
		for r := range coord.Results() {
			srv.PublishResult(r)
		}
	}()

	// Low-rate camera preview for the dashboard.
	go previewLoop(ctx, cam, srv)

	<-ctx.Done()
	log.Info("shutting down")

	summary, err := coord.Stop()
	if err != nil {
		return err
	}
	sinkCancel()
	storeSink.Wait()
	if remote != nil {
		remote.Wait()
	}
	if err := st.EndSession(sessionID, time.Now(), summary); err != nil {
		log.Error("persist summary", "error", err)
	}
	srv.Shutdown()

	log.Info("session complete",
		"session_id", sessionID,
		"duration_s", summary.TotalDurationS,
		"in_cockpit_pct", summary.InCockpitPct,
		"out_glances", summary.NOutGlances,
		"samples", summary.TotalSamples)
	return nil
}

// previewLoop pushes JPEG frames to dashboard viewers at a fraction of
// the capture rate.
func previewLoop(ctx context.Context, cam camera.Source, srv *web.Server) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if jpeg, _, ok := cam.Frame(); ok {
				srv.PublishFrame(jpeg)
			}
		}
	}
}
