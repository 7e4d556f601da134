package gaze

// EMA smooths successive gaze points with an exponential moving average,
// each axis independently. Smaller alpha trades responsiveness for
// stability. Not safe for concurrent use; the pipeline goroutine owns it.
type EMA struct {
	alpha  float64
	prev   Point
	seeded bool
}

// NewEMA creates a filter with the given weight for new samples.
// alpha must be in (0,1]; 1 disables smoothing.
func NewEMA(alpha float64) *EMA {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &EMA{alpha: alpha}
}

// Update feeds a raw point and returns the smoothed point. The first call
// after construction or Reset returns the raw value unchanged and seeds
// the filter.
func (f *EMA) Update(raw Point) Point {
	if !f.seeded {
		f.prev = raw
		f.seeded = true
		return raw
	}
	f.prev = Point{
		X: f.alpha*raw.X + (1-f.alpha)*f.prev.X,
		Y: f.alpha*raw.Y + (1-f.alpha)*f.prev.Y,
	}
	return f.prev
}

// Reset clears the filter state so a new session never sees values from a
// prior one.
func (f *EMA) Reset() {
	f.seeded = false
	f.prev = Point{}
}
