package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/pkg/features"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/landmark"
)

// unitSquare is the test area of interest: gaze inside [0,1]x[0,1] is
// IN_COCKPIT.
var unitSquare = gaze.AOI{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

var testFrame = []byte{0xff, 0xd8, 0xff, 0xd9}

type fakeSource struct{}

func (fakeSource) Frame() ([]byte, time.Time, bool) { return testFrame, time.Now(), true }
func (fakeSource) Close() error                     { return nil }

// scriptDetector returns whatever observation its script produces for
// the current call index.
type scriptDetector struct {
	calls  int
	script func(call int) *landmark.FaceObservation
}

func (d *scriptDetector) Detect(_ []byte, _ int64) (*landmark.FaceObservation, error) {
	obs := d.script(d.calls)
	d.calls++
	return obs, nil
}

func (d *scriptDetector) Close() error { return nil }

// irisPredictor maps the feature vector straight back to the absolute
// left iris position, so tests steer the predicted point through the
// observation alone.
type irisPredictor struct{}

func (irisPredictor) Predict(v features.Vector) (gaze.Point, error) {
	return gaze.Point{X: v[0], Y: v[1]}, nil
}

// memorySink records everything the coordinator emits.
type memorySink struct {
	mu      sync.Mutex
	results []Result
	events  []gaze.StateEvent
	markers []Marker
}

func (s *memorySink) WriteResult(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *memorySink) WriteEvent(ev gaze.StateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *memorySink) WriteMarker(m Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
}

// observationAt builds a clean, confident observation whose left iris
// sits at p.
func observationAt(p gaze.Point, confidence float64) *landmark.FaceObservation {
	eye := func(center gaze.Point) landmark.Box {
		return landmark.Box{
			MinX: center.X - 0.05, MinY: center.Y - 0.02,
			MaxX: center.X + 0.05, MaxY: center.Y + 0.02,
		}
	}
	lp := landmark.Point{X: p.X, Y: p.Y}
	return &landmark.FaceObservation{
		LeftIris:      lp,
		RightIris:     landmark.Point{X: p.X + 0.1, Y: p.Y},
		LeftEye:       eye(gaze.Point{X: p.X, Y: p.Y}),
		RightEye:      eye(gaze.Point{X: p.X + 0.1, Y: p.Y}),
		Nose:          landmark.Point{X: p.X + 0.05, Y: p.Y + 0.1},
		Chin:          landmark.Point{X: p.X + 0.05, Y: p.Y + 0.25},
		Forehead:      landmark.Point{X: p.X + 0.05, Y: p.Y - 0.1},
		LeftOpenness:  0.15,
		RightOpenness: 0.15,
		Confidence:    confidence,
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.EMAAlpha = 1 // no smoothing so each test frame lands exactly
	return cfg
}

func newTestCoordinator(t *testing.T, cfg config.Config, det landmark.Detector) (*Coordinator, *memorySink) {
	t.Helper()
	sink := &memorySink{}
	c, err := New(cfg, fakeSource{}, det, irisPredictor{}, unitSquare, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, sink
}

// A single out-of-area frame in an otherwise steady in-area stream must
// never reach the committed state.
func TestCoordinator_SingleFrameSpikeNeverCommits(t *testing.T) {
	const (
		frames     = 150
		spikeFrame = 75
		frameStep  = 33 * time.Millisecond
	)
	det := &scriptDetector{script: func(call int) *landmark.FaceObservation {
		if call == spikeFrame {
			return observationAt(gaze.Point{X: 2.0, Y: 0.5}, 0.95) // far outside
		}
		return observationAt(gaze.Point{X: 0.5, Y: 0.5}, 0.95)
	}}
	c, sink := newTestCoordinator(t, testConfig(), det)
	c.beginSession()

	for i := 0; i < frames; i++ {
		c.step(testFrame, time.Duration(i)*frameStep, time.Now())
	}

	sawRawSpike := false
	for i, r := range sink.results {
		if r.Raw == gaze.StateOutOfCockpit {
			sawRawSpike = true
			if i != spikeFrame {
				t.Errorf("raw OUT_OF_COCKPIT at frame %d, expected only at %d", i, spikeFrame)
			}
		}
		if i > 10 && r.Committed != gaze.StateInCockpit {
			t.Errorf("frame %d: committed = %s, want IN_COCKPIT", i, r.Committed)
		}
	}
	if !sawRawSpike {
		t.Error("spike frame never produced a raw OUT_OF_COCKPIT candidate")
	}
	for _, ev := range sink.events {
		if ev.To == gaze.StateOutOfCockpit {
			t.Errorf("spike leaked into committed state: %+v", ev)
		}
	}
}

func TestCoordinator_CommitsAfterStableInterval(t *testing.T) {
	det := &scriptDetector{script: func(int) *landmark.FaceObservation {
		return observationAt(gaze.Point{X: 0.5, Y: 0.5}, 0.95)
	}}
	c, sink := newTestCoordinator(t, testConfig(), det)
	c.beginSession()

	// 190ms of IN_COCKPIT is under the 200ms threshold.
	for _, ms := range []int64{0, 50, 100, 150, 190} {
		c.step(testFrame, time.Duration(ms)*time.Millisecond, time.Now())
	}
	last := sink.results[len(sink.results)-1]
	if last.Committed != gaze.StateUnknown {
		t.Fatalf("committed = %s before stable interval, want UNKNOWN", last.Committed)
	}

	c.step(testFrame, 200*time.Millisecond, time.Now())
	last = sink.results[len(sink.results)-1]
	if last.Committed != gaze.StateInCockpit {
		t.Fatalf("committed = %s at stable interval, want IN_COCKPIT", last.Committed)
	}
	if len(sink.events) != 1 || sink.events[0].To != gaze.StateInCockpit {
		t.Fatalf("events = %+v, want one UNKNOWN->IN_COCKPIT transition", sink.events)
	}
}

func TestCoordinator_PublishDropsWhenFull(t *testing.T) {
	det := &scriptDetector{script: func(int) *landmark.FaceObservation {
		return observationAt(gaze.Point{X: 0.5, Y: 0.5}, 0.95)
	}}
	c, _ := newTestCoordinator(t, testConfig(), det)
	c.beginSession()

	// Nobody drains the channel: 7 publishes into a 5-slot buffer.
	for i := 0; i < 7; i++ {
		c.step(testFrame, time.Duration(i)*33*time.Millisecond, time.Now())
	}
	if got := c.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
	if got := len(c.results); got != resultBuffer {
		t.Fatalf("buffered results = %d, want %d", got, resultBuffer)
	}

	// The buffered results are the oldest ones, in order.
	first := <-c.Results()
	if first.Seq != 1 {
		t.Fatalf("first buffered seq = %d, want 1", first.Seq)
	}
}

func TestCoordinator_LowConfidenceIsUnknown(t *testing.T) {
	det := &scriptDetector{script: func(int) *landmark.FaceObservation {
		return observationAt(gaze.Point{X: 0.5, Y: 0.5}, 0.1)
	}}
	c, sink := newTestCoordinator(t, testConfig(), det)
	c.beginSession()

	c.step(testFrame, 0, time.Now())
	r := sink.results[0]
	if r.Raw != gaze.StateUnknown {
		t.Errorf("raw = %s, want UNKNOWN below confidence threshold", r.Raw)
	}
	if r.FaceDetected {
		t.Error("FaceDetected = true for a below-threshold observation")
	}
}

func TestCoordinator_AutoPause(t *testing.T) {
	det := &scriptDetector{script: func(call int) *landmark.FaceObservation {
		if call >= 6 {
			return observationAt(gaze.Point{X: 0.5, Y: 0.5}, 0.95)
		}
		return nil // no face
	}}
	c, sink := newTestCoordinator(t, testConfig(), det)
	c.beginSession()

	// Face lost from t=0; pause engages once 3s have elapsed.
	monos := []time.Duration{
		0,
		1 * time.Second,
		2 * time.Second,
		2900 * time.Millisecond,
		3 * time.Second,
		3500 * time.Millisecond,
		4 * time.Second, // face returns
	}
	for _, m := range monos {
		c.step(testFrame, m, time.Now())
	}

	wantPaused := []bool{false, false, false, false, true, true, false}
	for i, r := range sink.results {
		if r.AutoPaused != wantPaused[i] {
			t.Errorf("frame %d (mono %s): AutoPaused = %v, want %v",
				i, monos[i], r.AutoPaused, wantPaused[i])
		}
	}
}

func TestCoordinator_StartStop(t *testing.T) {
	det := &scriptDetector{script: func(int) *landmark.FaceObservation {
		return observationAt(gaze.Point{X: 0.5, Y: 0.5}, 0.95)
	}}
	cfg := testConfig()
	cfg.FPSTarget = 100 // fast ticks so the test stays short
	c, sink := newTestCoordinator(t, cfg, det)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.SessionID() == "" {
		t.Error("SessionID empty after Start")
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	done := make(chan int)
	go func() {
		n := 0
		for range c.Results() {
			n++
		}
		done <- n
	}()

	time.Sleep(250 * time.Millisecond)
	c.AddMarker("checkpoint")

	summary, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	drained := <-done

	if summary.TotalSamples == 0 {
		t.Error("summary has no samples")
	}
	if drained == 0 {
		t.Error("no results delivered on the channel")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.markers) != 1 || sink.markers[0].Label != "checkpoint" {
		t.Errorf("markers = %+v, want one checkpoint", sink.markers)
	}
	if len(sink.events) == 0 {
		t.Error("no state events recorded; expected at least the closing segment")
	}
}

func TestCoordinator_NilObservationDegradesToUnknown(t *testing.T) {
	det := &scriptDetector{script: func(int) *landmark.FaceObservation { return nil }}
	c, sink := newTestCoordinator(t, testConfig(), det)
	c.beginSession()

	c.step(testFrame, 0, time.Now())
	r := sink.results[0]
	if r.Raw != gaze.StateUnknown || r.Committed != gaze.StateUnknown {
		t.Fatalf("raw/committed = %s/%s, want UNKNOWN/UNKNOWN", r.Raw, r.Committed)
	}
	if r.FaceDetected {
		t.Error("FaceDetected = true with no observation")
	}
}
