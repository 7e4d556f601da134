package calibration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// dumpVersion is bumped whenever the serialized layout changes. Decode
// rejects anything else rather than guessing.
const dumpVersion = 1

const dumpKind = "polynomial_ridge"

// modelDump is the explicit, versioned parameter dump for a fitted model.
// Every parameter actually used at predict time is present (degree,
// standardization, coefficients), so a decoded model cannot silently
// diverge from the one that was fitted.
type modelDump struct {
	Version      int       `json:"version"`
	Kind         string    `json:"type"`
	Degree       int       `json:"degree"`
	RidgeAlpha   float64   `json:"ridge_alpha"`
	FeatureCount int       `json:"feature_count"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
	X            axis      `json:"x"`
	Y            axis      `json:"y"`
	RMSE         float64   `json:"rmse"`
}

// Encode serializes a fitted model. Returns ErrNotCalibrated on an
// unfitted model.
func (m *Model) Encode() ([]byte, error) {
	if !m.fitted {
		return nil, ErrNotCalibrated
	}
	return json.Marshal(modelDump{
		Version:      dumpVersion,
		Kind:         dumpKind,
		Degree:       m.degree,
		RidgeAlpha:   m.alpha,
		FeatureCount: m.nfeat,
		Means:        m.means,
		Scales:       m.scales,
		X:            m.x,
		Y:            m.y,
		RMSE:         m.rmse,
	})
}

// Decode reconstructs a fitted model from an Encode blob. The decoded
// model predicts identically to the one that was encoded.
func Decode(data []byte) (*Model, error) {
	var d modelDump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode calibration model: %w", err)
	}

	if d.Version != dumpVersion {
		return nil, fmt.Errorf("unsupported calibration model version %d (want %d)", d.Version, dumpVersion)
	}
	if d.Kind != dumpKind {
		return nil, fmt.Errorf("unsupported calibration model type %q", d.Kind)
	}
	if d.Degree < 1 {
		return nil, fmt.Errorf("invalid degree %d", d.Degree)
	}
	if d.FeatureCount < 1 {
		return nil, fmt.Errorf("invalid feature count %d", d.FeatureCount)
	}
	if len(d.Means) != d.FeatureCount || len(d.Scales) != d.FeatureCount {
		return nil, fmt.Errorf("standardization arrays (%d means, %d scales) do not match feature count %d",
			len(d.Means), len(d.Scales), d.FeatureCount)
	}
	want := expandedCount(d.FeatureCount, d.Degree)
	if len(d.X.Coef) != want || len(d.Y.Coef) != want {
		return nil, fmt.Errorf("coefficient arrays (%d, %d) do not match expanded feature count %d",
			len(d.X.Coef), len(d.Y.Coef), want)
	}
	for _, s := range d.Scales {
		if s == 0 {
			return nil, fmt.Errorf("zero standardization scale")
		}
	}

	return &Model{
		degree: d.Degree,
		alpha:  d.RidgeAlpha,
		fitted: true,
		nfeat:  d.FeatureCount,
		means:  d.Means,
		scales: d.Scales,
		x:      d.X,
		y:      d.Y,
		rmse:   d.RMSE,
	}, nil
}

// MarshalJSON implements json.Marshaler for a fitted model.
func (m *Model) MarshalJSON() ([]byte, error) {
	return m.Encode()
}

// UnmarshalJSON implements json.Unmarshaler with the same validation as
// Decode.
func (m *Model) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// Hash returns a short content hash of a serialized model blob, recorded
// in session metadata so a session can be traced to the exact calibration
// it ran with.
func Hash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])[:12]
}
