// Package features converts facial landmark observations into fixed-length
// numeric vectors for gaze regression.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-gaze/pkg/landmark"
)

// Count is the fixed feature vector length. It is constant for the
// lifetime of the process; calibration models are fitted against it.
const Count = 20

// Vector is an ordered sequence of Count finite float64 values.
type Vector []float64

var (
	// ErrNoObservation indicates no face was observed this frame.
	ErrNoObservation = errors.New("no face observation")

	// ErrNonFinite indicates an observation contained NaN or Inf values.
	ErrNonFinite = errors.New("non-finite landmark value")
)

// Guards against division by zero on degenerate eye boxes.
const epsilon = 1e-6

// Extract computes the feature vector for one observation.
//
// The vector layout is:
//
//	[0:4]   absolute iris positions (lx, ly, rx, ry)
//	[4:8]   eye-relative iris offsets (gaze direction proxy)
//	[8:12]  eye box extents (head scale proxy)
//	[12:18] nose, chin, forehead positions (head position proxy)
//	[18:20] mean iris position
//
// The eye-relative offset is the iris position minus the eye box origin,
// normalized by the eye extent: a centered iris reads ~0.5 regardless of
// where the head sits in the frame, which is what lets a calibration
// survive small head translations.
//
// Extract is deterministic and side-effect free. A nil observation
// returns ErrNoObservation; non-finite inputs return ErrNonFinite.
func Extract(obs *landmark.FaceObservation) (Vector, error) {
	if obs == nil {
		return nil, ErrNoObservation
	}

	lRelX, lRelY, lw, lh := eyeRelative(obs.LeftIris, obs.LeftEye)
	rRelX, rRelY, rw, rh := eyeRelative(obs.RightIris, obs.RightEye)

	v := Vector{
		obs.LeftIris.X, obs.LeftIris.Y,
		obs.RightIris.X, obs.RightIris.Y,

		lRelX, lRelY,
		rRelX, rRelY,

		lw, lh,
		rw, rh,

		obs.Nose.X, obs.Nose.Y,
		obs.Chin.X, obs.Chin.Y,
		obs.Forehead.X, obs.Forehead.Y,

		(obs.LeftIris.X + obs.RightIris.X) / 2,
		(obs.LeftIris.Y + obs.RightIris.Y) / 2,
	}

	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("feature %d: %w", i, ErrNonFinite)
		}
	}
	return v, nil
}

// eyeRelative returns the iris position relative to its eye box, plus the
// eye extents.
func eyeRelative(iris landmark.Point, eye landmark.Box) (relX, relY, w, h float64) {
	w = eye.Width() + epsilon
	h = eye.Height() + epsilon
	relX = (iris.X - eye.MinX) / w
	relY = (iris.Y - eye.MinY) / h
	return relX, relY, w, h
}
