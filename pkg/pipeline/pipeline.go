// Package pipeline runs the per-frame gaze classification loop.
//
// A single coordinator goroutine pulls frames, drives detection, feature
// extraction, prediction, smoothing, area classification and debouncing
// in order, and publishes results through a bounded non-blocking channel.
// The consumer drains at its own pace; overflow is defined data loss, not
// an error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/features"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/landmark"
)

// resultBuffer is the capacity of the results channel. Small on purpose:
// a stalled consumer costs at most this many frames of memory, and the
// writer never waits.
const resultBuffer = 5

// Coordinator owns the camera, detector, filter and state machine for
// one session. The frame source and detector are single-owner resources;
// nothing else may touch them while the coordinator runs.
type Coordinator struct {
	cfg       config.Config
	source    camera.Source
	detector  landmark.Detector
	predictor Predictor
	aoi       gaze.AOI
	sink      Sink

	ema *gaze.EMA
	deb *gaze.Debouncer

	results chan Result
	dropped atomic.Uint64
	seq     uint64

	sessionID string
	startMono time.Time
	startWall time.Time
	samples   []gaze.Sample

	// nowFn returns the monotonic offset from session start.
	// Overridable in tests.
	nowFn func() time.Duration

	lastDetectMs  int64
	faceLostSince time.Duration
	faceLost      bool
	autoPaused    atomic.Bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New assembles a coordinator. The predictor must already be calibrated;
// a degenerate AOI is tolerated (everything classifies OUT_OF_COCKPIT)
// but logged, since it is almost certainly an operator mistake.
func New(cfg config.Config, source camera.Source, detector landmark.Detector, predictor Predictor, aoi gaze.AOI, sink Sink) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || detector == nil || predictor == nil {
		return nil, errors.New("pipeline: source, detector and predictor are required")
	}
	if !aoi.Valid() {
		log.Warn("malformed area of interest; all gaze will classify OUT_OF_COCKPIT",
			"vertices", len(aoi))
	}
	return &Coordinator{
		cfg:       cfg,
		source:    source,
		detector:  detector,
		predictor: predictor,
		aoi:       aoi,
		sink:      sink,
		ema:       gaze.NewEMA(cfg.EMAAlpha),
		deb:       gaze.NewDebouncer(time.Duration(cfg.StableMs * float64(time.Millisecond))),
		results:   make(chan Result, resultBuffer),
	}, nil
}

// Results is the bounded output channel for the current session. Each
// Start creates a fresh channel, and Stop closes it after the final
// result; fetch it after Start.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// Dropped returns how many results were discarded because the consumer
// was not keeping up.
func (c *Coordinator) Dropped() uint64 {
	return c.dropped.Load()
}

// SessionID returns the identifier of the running session, empty before
// Start.
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// AutoPaused reports whether the pipeline is currently flagging results
// because no confident face has been seen.
func (c *Coordinator) AutoPaused() bool {
	return c.autoPaused.Load()
}

// Start begins a new session and launches the coordinator goroutine.
// Filter and state machine are reset so nothing leaks from a prior
// session.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.started {
		return errors.New("pipeline: already started")
	}
	c.beginSession()

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)

	log.Info("session started", "session_id", c.sessionID)
	return nil
}

// beginSession resets all session-scoped state: identifiers, clocks,
// the smoothing filter and the state machine.
func (c *Coordinator) beginSession() {
	c.started = true
	c.sessionID = uuid.NewString()
	c.startMono = time.Now()
	c.startWall = time.Now()
	c.samples = c.samples[:0]
	c.results = make(chan Result, resultBuffer)
	c.dropped.Store(0)
	c.seq = 0
	c.lastDetectMs = 0
	c.faceLost = false
	c.autoPaused.Store(false)

	if c.nowFn == nil {
		c.nowFn = func() time.Duration { return time.Since(c.startMono) }
	}

	c.ema.Reset()
	c.deb.Reset(0)
	c.deb.OnTransition(func(ev gaze.StateEvent) {
		if c.sink != nil {
			c.sink.WriteEvent(ev)
		}
	})
}

// Stop cancels the coordinator, waits for it to flush, closes the final
// state segment and returns the session summary.
func (c *Coordinator) Stop() (gaze.Summary, error) {
	if !c.started {
		return gaze.Summary{}, errors.New("pipeline: not started")
	}
	c.cancel()
	c.wg.Wait()

	end := c.nowFn()
	if ev := c.deb.ForceClose(end); ev != nil && c.sink != nil {
		c.sink.WriteEvent(*ev)
	}
	close(c.results)
	c.started = false

	summary := gaze.Summarize(c.samples, c.deb.Events(), end)
	log.Info("session stopped",
		"session_id", c.sessionID,
		"duration_s", summary.TotalDurationS,
		"samples", summary.TotalSamples,
		"dropped", c.Dropped())
	return summary, nil
}

// AddMarker records an operator annotation at the current session time.
func (c *Coordinator) AddMarker(label string) {
	if !c.started || c.sink == nil {
		return
	}
	c.sink.WriteMarker(Marker{
		Mono:  c.nowFn(),
		Wall:  time.Now(),
		Label: label,
	})
}

// run is the coordinator loop: one iteration per frame interval, with
// the stop signal checked every iteration. Frame acquisition is the only
// blocking point; stages never perform I/O.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	interval := time.Second / time.Duration(c.cfg.FPSTarget)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, _, ok := c.source.Frame()
			if !ok {
				continue
			}
			c.step(frame, c.nowFn(), time.Now())
		}
	}
}

// step processes one frame through every stage. A malformed or missing
// observation degrades to an UNKNOWN candidate; it never interrupts the
// loop.
func (c *Coordinator) step(frame []byte, mono time.Duration, wall time.Time) {
	obs := c.detect(frame, mono)

	var (
		point        = gaze.Point{X: 0.5, Y: 0.5}
		confidence   float64
		raw          = gaze.StateUnknown
		faceDetected bool
	)

	if obs != nil && obs.Confidence >= c.cfg.MinConfidence {
		faceDetected = true
		v, err := features.Extract(obs)
		if err != nil {
			// Non-finite landmarks: degrade to UNKNOWN, keep going.
			log.Warn("feature extraction failed", "error", err)
		} else if predicted, err := c.predictor.Predict(v); err != nil {
			log.Warn("prediction failed", "error", err)
		} else {
			point = c.ema.Update(predicted)
			confidence = obs.Confidence
			raw = c.aoi.Classify(point)
		}
	}

	c.trackAutoPause(faceDetected && raw != gaze.StateUnknown, mono)

	// Confidence gate: anything below the threshold is UNKNOWN no
	// matter what the polygon says.
	if confidence < c.cfg.MinConfidence {
		raw = gaze.StateUnknown
	}

	committed := c.deb.Update(raw, mono)

	c.seq++
	res := Result{
		SessionID:    c.sessionID,
		Seq:          c.seq,
		Mono:         mono,
		Wall:         wall,
		Raw:          raw,
		Committed:    committed,
		Point:        point,
		Confidence:   confidence,
		FaceDetected: faceDetected,
		AutoPaused:   c.autoPaused.Load(),
	}

	c.samples = append(c.samples, res.Sample())
	if c.sink != nil {
		c.sink.WriteResult(res)
	}
	c.publish(res)
}

// detect runs the external landmark detector, tolerating failures and
// enforcing the strictly increasing timestamp the detector requires.
func (c *Coordinator) detect(frame []byte, mono time.Duration) *landmark.FaceObservation {
	tsMs := mono.Milliseconds()
	if tsMs <= c.lastDetectMs {
		tsMs = c.lastDetectMs + 1
	}
	c.lastDetectMs = tsMs

	obs, err := c.detector.Detect(frame, tsMs)
	if err != nil {
		log.Warn("landmark detection failed", "error", err)
		return nil
	}
	return obs
}

// trackAutoPause flags results once no confident face has been seen for
// the configured interval. Informational only; the state machine already
// sees UNKNOWN for these frames.
func (c *Coordinator) trackAutoPause(confident bool, mono time.Duration) {
	if confident {
		if c.autoPaused.Load() {
			log.Info("face reacquired, auto-pause cleared")
		}
		c.faceLost = false
		c.autoPaused.Store(false)
		return
	}
	if !c.faceLost {
		c.faceLost = true
		c.faceLostSince = mono
		return
	}
	lostFor := mono - c.faceLostSince
	if !c.autoPaused.Load() && lostFor >= time.Duration(c.cfg.AutoPauseSeconds*float64(time.Second)) {
		c.autoPaused.Store(true)
		log.Info("no confident face, auto-pausing", "lost_for", lostFor)
	}
}

// publish hands the result to the consumer without ever waiting. If the
// channel is full the result is dropped and counted; boundedness keeps
// the pipeline real-time even when the consumer stalls.
func (c *Coordinator) publish(res Result) {
	select {
	case c.results <- res:
	default:
		c.dropped.Add(1)
	}
}

// String describes the coordinator configuration for logs.
func (c *Coordinator) String() string {
	return fmt.Sprintf("pipeline(fps=%d, min_conf=%.2f, alpha=%.2f, stable=%.0fms)",
		c.cfg.FPSTarget, c.cfg.MinConfidence, c.cfg.EMAAlpha, c.cfg.StableMs)
}
