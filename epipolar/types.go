package epipolar

import (
	"math"

	"github.com/golang/geo/r2"
)

// Keypoint is a detected interest point in image coordinates, with
// detector-specific metadata that the validation pipeline carries along
// but never interprets.
type Keypoint struct {
	Point    r2.Point
	Size     float64
	Angle    float64
	Response float64
	Octave   int
}

// Descriptor is the fixed-length appearance vector for one keypoint.
type Descriptor []float32

// Candidate is one nearest-neighbor hypothesis for a query descriptor.
// Distance is a dissimilarity score; lower is more similar.
type Candidate struct {
	Train    int
	Distance float64
}

// DirectedMatch holds the candidate neighbors for one query descriptor,
// sorted by ascending distance. Query mirrors the entry's position in its
// sequence so that clearing an entry never breaks positional lookup.
type DirectedMatch struct {
	Query      int
	Candidates []Candidate
}

// Valid reports whether the entry still carries enough candidates for the
// ratio and symmetry tests. Cleared entries are invalid.
func (m DirectedMatch) Valid() bool {
	return len(m.Candidates) >= 2
}

// Match is an undirected, validated correspondence between keypoint
// Query in the first image and keypoint Train in the second.
type Match struct {
	Query    int
	Train    int
	Distance float64
}

// FundamentalMatrix relates two views of a scene: for an inlier
// correspondence (p1, p2), p2ᵀ·F·p1 ≈ 0.
type FundamentalMatrix [3][3]float64

// line computes the epipolar line a·x + b·y + c = 0 in the second image
// induced by a point in the first.
func (f FundamentalMatrix) line(p r2.Point) (a, b, c float64) {
	a = f[0][0]*p.X + f[0][1]*p.Y + f[0][2]
	b = f[1][0]*p.X + f[1][1]*p.Y + f[1][2]
	c = f[2][0]*p.X + f[2][1]*p.Y + f[2][2]
	return a, b, c
}

// transposed returns Fᵀ, the matrix relating the views in the other order.
func (f FundamentalMatrix) transposed() FundamentalMatrix {
	var t FundamentalMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] = f[j][i]
		}
	}
	return t
}

// EpipolarDistance is the symmetric epipolar residual for a correspondence:
// the larger of the distance from p2 to the line F·p1 and the distance from
// p1 to the line Fᵀ·p2, in pixels. Symmetry keeps the residual invariant
// under swapping the two images.
func (f FundamentalMatrix) EpipolarDistance(p1, p2 r2.Point) float64 {
	d1 := pointLineDistance(f, p1, p2)
	d2 := pointLineDistance(f.transposed(), p2, p1)
	return math.Max(d1, d2)
}

// pointLineDistance is the distance from p2 to the epipolar line F·p1.
func pointLineDistance(f FundamentalMatrix, p1, p2 r2.Point) float64 {
	a, b, c := f.line(p1)
	norm := math.Hypot(a, b)
	if norm < 1e-12 {
		return math.Inf(1)
	}
	return math.Abs(a*p2.X+b*p2.Y+c) / norm
}

// MatchResult is the output of a full pipeline run.
type MatchResult struct {
	Matches     []Match
	Keypoints1  []Keypoint
	Keypoints2  []Keypoint
	Fundamental FundamentalMatrix
}

// Stage identifies one step of the matching pipeline, for observation.
type Stage int

const (
	// StageDetect covers keypoint detection for both images.
	StageDetect Stage = iota
	// StageExtract covers descriptor extraction for both images.
	StageExtract
	// StageKNN covers both directional nearest-neighbor searches.
	StageKNN
	// StageRatio covers the ratio test on both directions.
	StageRatio
	// StageSymmetry covers the mutual-agreement test.
	StageSymmetry
	// StageRANSAC covers robust estimation, mask filtering, and refinement.
	StageRANSAC
)

func (s Stage) String() string {
	switch s {
	case StageDetect:
		return "detect"
	case StageExtract:
		return "extract"
	case StageKNN:
		return "knn"
	case StageRatio:
		return "ratio"
	case StageSymmetry:
		return "symmetry"
	case StageRANSAC:
		return "ransac"
	default:
		return "unknown"
	}
}
