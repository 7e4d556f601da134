package calibration

import (
	"fmt"

	"github.com/teslashibe/go-gaze/pkg/features"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Sample is one calibration data point: the averaged feature vector
// observed while the subject fixated a known on-screen target, plus the
// number of raw observations that went into the average.
type Sample struct {
	Features features.Vector `json:"features"`
	Target   gaze.Point      `json:"target"`
	RawCount int             `json:"raw_count"`
}

// Collector buffers raw per-frame feature vectors for the current
// calibration target and averages them into a single Sample. Averaging
// first means every target contributes exactly one sample to the fit, so
// a target with a long dwell cannot dominate by observation count.
type Collector struct {
	buf []features.Vector
}

// Add buffers one raw observation for the current target.
func (c *Collector) Add(v features.Vector) {
	c.buf = append(c.buf, v)
}

// Count returns the number of buffered raw observations.
func (c *Collector) Count() int {
	return len(c.buf)
}

// Finish averages the buffered observations into one Sample for the given
// target and clears the buffer for the next target.
func (c *Collector) Finish(target gaze.Point) (Sample, error) {
	if len(c.buf) == 0 {
		return Sample{}, fmt.Errorf("target (%.2f, %.2f): no raw observations: %w",
			target.X, target.Y, ErrInsufficientData)
	}

	n := len(c.buf)
	avg := make(features.Vector, len(c.buf[0]))
	for _, v := range c.buf {
		for i, f := range v {
			avg[i] += f
		}
	}
	for i := range avg {
		avg[i] /= float64(n)
	}

	c.buf = c.buf[:0]
	return Sample{Features: avg, Target: target, RawCount: n}, nil
}

// Reset discards any buffered observations.
func (c *Collector) Reset() {
	c.buf = c.buf[:0]
}

// TargetGrid returns the standard 9-point calibration grid in normalized
// screen coordinates.
func TargetGrid() []gaze.Point {
	return []gaze.Point{
		{X: 0.1, Y: 0.1}, {X: 0.5, Y: 0.1}, {X: 0.9, Y: 0.1},
		{X: 0.1, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 0.9, Y: 0.5},
		{X: 0.1, Y: 0.9}, {X: 0.5, Y: 0.9}, {X: 0.9, Y: 0.9},
	}
}
