package gaze

import "math"

// AOI is an operator-defined area of interest: an ordered sequence of
// vertices describing a closed polygon in normalized screen space.
// A degenerate AOI (fewer than 3 vertices) never contains any point;
// malformed configuration must not crash the live pipeline.
type AOI []Point

// Tolerance for the on-edge test. Points within this distance of an edge
// count as inside, making the boundary rule deterministic instead of
// depending on floating-point orientation.
const edgeEpsilon = 1e-9

// Valid reports whether the polygon has enough vertices to enclose area.
func (a AOI) Valid() bool {
	return len(a) >= 3
}

// Contains performs an even-odd ray-casting hit test. Points exactly on a
// polygon edge are inside.
func (a AOI) Contains(p Point) bool {
	if !a.Valid() {
		return false
	}

	for i := range a {
		if onSegment(p, a[i], a[(i+1)%len(a)]) {
			return true
		}
	}

	inside := false
	j := len(a) - 1
	for i := 0; i < len(a); i++ {
		vi, vj := a[i], a[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xCross := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Classify maps a gaze point to IN_COCKPIT or OUT_OF_COCKPIT. Confidence
// gating to UNKNOWN happens upstream in the pipeline, not here.
func (a AOI) Classify(p Point) State {
	if a.Contains(p) {
		return StateInCockpit
	}
	return StateOutOfCockpit
}

// onSegment reports whether p lies on the segment [a, b] within tolerance.
func onSegment(p, a, b Point) bool {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y

	cross := abx*apy - aby*apx
	if math.Abs(cross) > edgeEpsilon {
		return false
	}

	dot := apx*abx + apy*aby
	if dot < -edgeEpsilon {
		return false
	}
	lenSq := abx*abx + aby*aby
	return dot <= lenSq+edgeEpsilon
}
