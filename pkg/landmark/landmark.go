// Package landmark provides facial landmark detection for gaze estimation.
package landmark

// Point is a position in normalized frame coordinates (0-1).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned region in normalized frame coordinates.
type Box struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// FaceObservation is the processed output for one camera frame.
// It is immutable once produced; consumers must not modify it.
type FaceObservation struct {
	// Iris centers in normalized frame coordinates.
	LeftIris  Point
	RightIris Point

	// Eye regions enclosing each iris.
	LeftEye  Box
	RightEye Box

	// Head position proxies.
	Nose     Point
	Chin     Point
	Forehead Point

	// Eye openness ratios (vertical / horizontal eye extent).
	LeftOpenness  float64
	RightOpenness float64

	// Confidence in [0,1], derived from detection score and eye openness.
	Confidence float64
}

// Detector is the interface for facial landmark detection backends.
// Implementations are owned by a single goroutine; they are not required
// to be safe for concurrent use.
type Detector interface {
	// Detect finds the dominant face in a JPEG-encoded frame.
	// timestampMs must be strictly increasing across calls within a
	// session. A nil observation with nil error means no face this frame.
	Detect(jpeg []byte, timestampMs int64) (*FaceObservation, error)

	// Close releases resources.
	Close() error
}

// fullOpenRatio is the eye-openness ratio treated as fully open. Below
// it confidence scales down linearly so blinks and closed eyes read as
// low confidence.
const fullOpenRatio = 0.15

// ConfidenceFromOpenness converts eye openness ratios to a confidence value.
func ConfidenceFromOpenness(left, right float64) float64 {
	avg := (left + right) / 2
	c := avg / fullOpenRatio
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
