package pipeline

import (
	"time"

	"github.com/teslashibe/go-gaze/pkg/features"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Result is one output unit per processed frame. It is created by the
// coordinator, handed to the results channel and the sink, and never
// shared mutably afterwards.
type Result struct {
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`

	// Mono is the monotonic offset from session start; Wall is for
	// display and audit only. Never compare one against the other.
	Mono time.Duration `json:"mono_ns"`
	Wall time.Time     `json:"wall"`

	// Raw is the unfiltered per-frame candidate (after the confidence
	// gate); Committed is the debounced state.
	Raw       gaze.State `json:"raw_state"`
	Committed gaze.State `json:"committed_state"`

	Point      gaze.Point `json:"point"`
	Confidence float64    `json:"confidence"`

	FaceDetected bool `json:"face_detected"`
	AutoPaused   bool `json:"auto_paused"`
}

// Sample converts the result to the recorded sample form.
func (r Result) Sample() gaze.Sample {
	return gaze.Sample{
		Mono:       r.Mono,
		Wall:       r.Wall,
		Point:      r.Point,
		Confidence: r.Confidence,
		State:      r.Committed,
	}
}

// Marker is an operator-inserted annotation during a session.
type Marker struct {
	Mono  time.Duration `json:"mono_ns"`
	Wall  time.Time     `json:"wall"`
	Label string        `json:"label"`
}

// Sink receives the session's output stream in emission order. Writes
// must not block the coordinator beyond a bounded enqueue; durable
// persistence is the sink's problem.
type Sink interface {
	WriteResult(Result)
	WriteEvent(gaze.StateEvent)
	WriteMarker(Marker)
}

// Predictor maps a feature vector to a normalized screen point.
// *calibration.Model is the production implementation.
type Predictor interface {
	Predict(v features.Vector) (gaze.Point, error)
}
