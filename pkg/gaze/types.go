// Package gaze contains the core gaze classification domain: screen-space
// points, the state taxonomy, smoothing, area classification and the
// debounce state machine.
package gaze

import "time"

// State classifies where the subject is looking.
// It is a closed set; no other values are valid.
type State string

const (
	// StateUnknown means no face was observed or confidence was too low.
	StateUnknown State = "UNKNOWN"

	// StateInCockpit means the smoothed gaze point fell inside the AOI.
	StateInCockpit State = "IN_COCKPIT"

	// StateOutOfCockpit means the gaze point fell outside the AOI.
	StateOutOfCockpit State = "OUT_OF_COCKPIT"
)

// Point is a gaze position in normalized screen space, [0,1] on each axis,
// in the same reference frame used during calibration.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample is one recorded gaze measurement.
//
// Mono is the monotonic offset from session start and is the only value
// durations may be computed from; Wall is for display and audit only.
type Sample struct {
	Mono       time.Duration `json:"mono_ns"`
	Wall       time.Time     `json:"wall"`
	Point      Point         `json:"point"`
	Confidence float64       `json:"confidence"`
	State      State         `json:"state"`
}

// StateEvent is a committed state transition with timing. Start is the
// beginning of the From segment; End is when the transition committed.
// A closing event at session end has From == To.
type StateEvent struct {
	From  State         `json:"from"`
	To    State         `json:"to"`
	Start time.Duration `json:"start_ns"`
	End   time.Duration `json:"end_ns"`
}

// Duration returns the length of the segment the event closes.
func (e StateEvent) Duration() time.Duration {
	return e.End - e.Start
}
