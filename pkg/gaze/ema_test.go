package gaze

import (
	"math"
	"testing"
)

func TestEMA_FirstCallPassesThrough(t *testing.T) {
	f := NewEMA(0.3)
	raw := Point{0.42, 0.77}
	if got := f.Update(raw); got != raw {
		t.Errorf("first update: got %v, want %v", got, raw)
	}
}

func TestEMA_ConvergesToConstantInput(t *testing.T) {
	f := NewEMA(0.3)
	f.Update(Point{0, 0})

	target := Point{1, 1}
	var got Point
	// With alpha=0.3 the residual shrinks by 0.7 per step;
	// 50 steps is orders of magnitude more than needed for 1e-6.
	for i := 0; i < 50; i++ {
		got = f.Update(target)
	}
	if math.Abs(got.X-1) > 1e-6 || math.Abs(got.Y-1) > 1e-6 {
		t.Errorf("did not converge: got %v", got)
	}
}

func TestEMA_SmoothingWeights(t *testing.T) {
	f := NewEMA(0.25)
	f.Update(Point{0, 0})
	got := f.Update(Point{1, 0.4})
	if math.Abs(got.X-0.25) > 1e-12 {
		t.Errorf("x: got %v, want 0.25", got.X)
	}
	if math.Abs(got.Y-0.1) > 1e-12 {
		t.Errorf("y: got %v, want 0.1", got.Y)
	}
}

func TestEMA_ResetClearsSeed(t *testing.T) {
	f := NewEMA(0.3)
	f.Update(Point{0.9, 0.9})
	f.Reset()

	raw := Point{0.1, 0.2}
	if got := f.Update(raw); got != raw {
		t.Errorf("after reset: got %v, want %v (stale state leaked)", got, raw)
	}
}

func TestNewEMA_InvalidAlphaDisablesSmoothing(t *testing.T) {
	for _, alpha := range []float64{0, -1, 1.5} {
		f := NewEMA(alpha)
		f.Update(Point{0, 0})
		if got := f.Update(Point{1, 1}); got != (Point{1, 1}) {
			t.Errorf("alpha=%v: got %v, want passthrough", alpha, got)
		}
	}
}
