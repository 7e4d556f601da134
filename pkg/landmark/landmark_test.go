package landmark

import (
	"math"
	"testing"
)

func TestConfidenceFromOpenness(t *testing.T) {
	tests := []struct {
		name        string
		left, right float64
		want        float64
	}{
		{"fully open", 0.15, 0.15, 1.0},
		{"wide open clamps", 0.30, 0.30, 1.0},
		{"half open", 0.075, 0.075, 0.5},
		{"closed", 0, 0, 0},
		{"one eye closed", 0.15, 0, 0.5},
		{"negative clamps", -0.1, -0.1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConfidenceFromOpenness(tt.left, tt.right)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConfidenceFromOpenness(%v, %v) = %v, want %v",
					tt.left, tt.right, got, tt.want)
			}
		})
	}
}

func face(conf, minX, minY, maxX, maxY float64) rawFace {
	return rawFace{
		box:        Box{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
		confidence: conf,
	}
}

func TestSelectBest(t *testing.T) {
	if got := selectBest(nil); got != nil {
		t.Fatal("empty detections should select nothing")
	}

	only := face(0.4, 0, 0, 0.1, 0.1)
	if got := selectBest([]rawFace{only}); got == nil || got.confidence != 0.4 {
		t.Fatal("single detection should be selected regardless of score")
	}

	// A big low-confidence background face must lose to a confident
	// foreground face of reasonable size.
	big := face(0.55, 0, 0, 0.9, 0.9)
	confident := face(0.95, 0.3, 0.3, 0.75, 0.75)
	got := selectBest([]rawFace{big, confident})
	if got == nil || got.confidence != 0.95 {
		t.Fatalf("selected confidence %v, want 0.95", got.confidence)
	}
}

func TestObservationFromRaw(t *testing.T) {
	f := rawFace{
		box:        Box{MinX: 0.2, MinY: 0.2, MaxX: 0.6, MaxY: 0.7},
		leftEye:    Point{X: 0.45, Y: 0.35},
		rightEye:   Point{X: 0.3, Y: 0.35},
		nose:       Point{X: 0.4, Y: 0.45},
		confidence: 0.9,
	}
	obs := observationFromRaw(f)

	if obs.LeftIris != f.leftEye || obs.RightIris != f.rightEye {
		t.Error("iris centers should be the eye landmarks")
	}
	if obs.Chin.Y != 0.7 || obs.Forehead.Y != 0.2 {
		t.Errorf("chin/forehead = %v/%v, want face box bottom/top", obs.Chin.Y, obs.Forehead.Y)
	}
	if obs.Chin.X != 0.4 || obs.Forehead.X != 0.4 {
		t.Error("chin and forehead should sit on the face box center line")
	}

	// Eye boxes are centered on the landmarks and sized from the face box.
	wantW := 0.4 * eyeBoxWidthFrac
	if w := obs.LeftEye.Width(); math.Abs(w-wantW) > 1e-9 {
		t.Errorf("eye box width = %v, want %v", w, wantW)
	}
	if !insideBox(obs.LeftIris, obs.LeftEye) || !insideBox(obs.RightIris, obs.RightEye) {
		t.Error("iris should sit inside its eye box")
	}
	if obs.Confidence != 0.9 {
		t.Errorf("confidence = %v, want detection score", obs.Confidence)
	}
}

func insideBox(p Point, b Box) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}
