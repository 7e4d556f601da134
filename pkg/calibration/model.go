// Package calibration fits and applies the personalized mapping from eye
// geometry features to normalized screen coordinates.
//
// The model is a composed pipeline per screen axis: feature
// standardization, polynomial expansion to a configured degree, and
// L2-regularized (ridge) linear regression. Degree 2 captures the
// eyeball/perspective non-linearity without overfitting a 9-target
// calibration set, and the non-zero ridge penalty keeps the fit
// conditioned when the expanded feature count exceeds the sample count.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-gaze/pkg/features"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

var (
	// ErrInsufficientData means a fit was attempted with too few or
	// degenerate samples. The fit attempt fails; the caller should
	// re-collect. The process and any previously fitted model are
	// unaffected.
	ErrInsufficientData = errors.New("insufficient calibration data")

	// ErrNotCalibrated means predict was called before a successful fit.
	ErrNotCalibrated = errors.New("model not calibrated")
)

// MinSamples is the smallest sample count accepted by Fit. Below this the
// degree-2 expansion is hopelessly rank-deficient even with
// regularization; practically 9 well-separated targets are used.
const MinSamples = 6

// axis holds the fitted ridge parameters for one screen axis, applied to
// the polynomial-expanded standardized features.
type axis struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Model maps feature vectors to normalized screen coordinates using two
// independently fitted regressors, one per axis. Immutable once fitted.
type Model struct {
	degree int
	alpha  float64

	fitted bool
	nfeat  int
	means  []float64
	scales []float64
	x, y   axis
	rmse   float64
}

// NewModel creates an unfitted model with the given polynomial degree and
// ridge strength. degree must be >= 1 and alpha > 0.
func NewModel(degree int, alpha float64) *Model {
	if degree < 1 {
		degree = 1
	}
	if alpha <= 0 {
		alpha = 1.0
	}
	return &Model{degree: degree, alpha: alpha}
}

// IsFitted reports whether Predict may be called.
func (m *Model) IsFitted() bool { return m.fitted }

// RMSE returns the training root-mean-square residual of the last
// successful fit, in normalized screen units.
func (m *Model) RMSE() float64 { return m.rmse }

// Degree returns the polynomial degree.
func (m *Model) Degree() int { return m.degree }

// Fit learns the mapping from the given calibration samples and returns
// the root-mean-square training residual. Callers should warn the
// operator when the residual exceeds their configured threshold.
func (m *Model) Fit(samples []Sample) (float64, error) {
	n := len(samples)
	if n < MinSamples {
		return 0, fmt.Errorf("%d samples, need at least %d: %w", n, MinSamples, ErrInsufficientData)
	}

	nfeat := len(samples[0].Features)
	if nfeat == 0 {
		return 0, fmt.Errorf("empty feature vectors: %w", ErrInsufficientData)
	}
	for i, s := range samples {
		if len(s.Features) != nfeat {
			return 0, fmt.Errorf("sample %d has %d features, want %d: %w",
				i, len(s.Features), nfeat, ErrInsufficientData)
		}
		for j, f := range s.Features {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return 0, fmt.Errorf("sample %d feature %d non-finite: %w", i, j, ErrInsufficientData)
			}
		}
	}

	// Standardization parameters, learned from the sample set. A
	// zero-variance column gets scale 1 so it standardizes to a constant
	// instead of dividing by zero.
	means := make([]float64, nfeat)
	scales := make([]float64, nfeat)
	col := make([]float64, n)
	for j := 0; j < nfeat; j++ {
		for i, s := range samples {
			col[i] = s.Features[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		means[j] = mean
		scales[j] = std
	}

	// Expanded design matrix with a trailing bias column. The bias term
	// is excluded from the ridge penalty.
	p := expandedCount(nfeat, m.degree)
	X := mat.NewDense(n, p+1, nil)
	z := make([]float64, nfeat)
	for i, s := range samples {
		standardize(s.Features, means, scales, z)
		row := expand(z, m.degree)
		for j, v := range row {
			X.Set(i, j, v)
		}
		X.Set(i, p, 1)
	}

	tx := make([]float64, n)
	ty := make([]float64, n)
	for i, s := range samples {
		tx[i] = s.Target.X
		ty[i] = s.Target.Y
	}

	coefX, err := ridgeSolve(X, tx, m.alpha)
	if err != nil {
		return 0, fmt.Errorf("solve x axis: %w", err)
	}
	coefY, err := ridgeSolve(X, ty, m.alpha)
	if err != nil {
		return 0, fmt.Errorf("solve y axis: %w", err)
	}

	m.nfeat = nfeat
	m.means = means
	m.scales = scales
	m.x = axis{Coef: coefX[:p], Intercept: coefX[p]}
	m.y = axis{Coef: coefY[:p], Intercept: coefY[p]}
	m.fitted = true

	// Training residual: Euclidean miss per sample, RMS over samples.
	var sumSq float64
	for _, s := range samples {
		pt, _ := m.Predict(s.Features)
		dx := pt.X - s.Target.X
		dy := pt.Y - s.Target.Y
		sumSq += dx*dx + dy*dy
	}
	m.rmse = math.Sqrt(sumSq / float64(n))
	return m.rmse, nil
}

// Predict maps a feature vector to a normalized gaze point, clamped to
// [0,1] on each axis. Deterministic given the fitted parameters.
func (m *Model) Predict(v features.Vector) (gaze.Point, error) {
	if !m.fitted {
		return gaze.Point{}, ErrNotCalibrated
	}
	if len(v) != m.nfeat {
		return gaze.Point{}, fmt.Errorf("feature vector has %d values, model fitted on %d", len(v), m.nfeat)
	}

	z := make([]float64, m.nfeat)
	standardize(v, m.means, m.scales, z)
	row := expand(z, m.degree)

	return gaze.Point{
		X: clamp01(dot(row, m.x.Coef) + m.x.Intercept),
		Y: clamp01(dot(row, m.y.Coef) + m.y.Intercept),
	}, nil
}

// ridgeSolve solves (XᵀX + αD)β = Xᵀt where D is the identity with a
// zero in the bias position, leaving the intercept unpenalized.
func ridgeSolve(X *mat.Dense, t []float64, alpha float64) ([]float64, error) {
	_, cols := X.Dims()

	var A mat.Dense
	A.Mul(X.T(), X)
	for j := 0; j < cols-1; j++ {
		A.Set(j, j, A.At(j, j)+alpha)
	}

	var b mat.VecDense
	b.MulVec(X.T(), mat.NewVecDense(len(t), t))

	var coef mat.VecDense
	if err := coef.SolveVec(&A, &b); err != nil {
		return nil, fmt.Errorf("normal equations singular: %w", err)
	}

	out := make([]float64, cols)
	copy(out, coef.RawVector().Data)
	return out, nil
}

func standardize(v features.Vector, means, scales, dst []float64) {
	for i := range dst {
		dst[i] = (v[i] - means[i]) / scales[i]
	}
}

// expand returns all monomials of the standardized features with total
// degree 1..degree, bias excluded. Terms are ordered by degree, then
// lexicographically by index combination, so fit and predict always agree
// on the layout.
func expand(z []float64, degree int) []float64 {
	nfeat := len(z)
	out := make([]float64, 0, expandedCount(nfeat, degree))

	// Degree-1 terms seed the frontier; each further degree multiplies
	// the previous frontier by features at >= the last index used,
	// which enumerates combinations with replacement exactly once.
	type term struct {
		value float64
		last  int
	}
	frontier := make([]term, nfeat)
	for i, v := range z {
		frontier[i] = term{value: v, last: i}
		out = append(out, v)
	}

	for d := 2; d <= degree; d++ {
		next := make([]term, 0, len(frontier)*nfeat)
		for _, t := range frontier {
			for j := t.last; j < nfeat; j++ {
				nt := term{value: t.value * z[j], last: j}
				next = append(next, nt)
				out = append(out, nt.value)
			}
		}
		frontier = next
	}
	return out
}

// expandedCount returns C(nfeat+degree, degree) - 1, the number of
// monomials of degree 1..degree over nfeat variables.
func expandedCount(nfeat, degree int) int {
	// Binomial via the multiplicative formula; sizes here are tiny.
	c := 1
	for i := 1; i <= degree; i++ {
		c = c * (nfeat + i) / i
	}
	return c - 1
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
