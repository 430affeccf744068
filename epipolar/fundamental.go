package epipolar

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// minFundamentalPoints is the minimum correspondence count for a determined
// fundamental-matrix solution.
const minFundamentalPoints = 8

// EightPoint estimates a fundamental matrix with the normalized 8-point
// algorithm. It assumes every supplied correspondence is an inlier.
type EightPoint struct{}

// Estimate solves for F such that pts2[i]ᵀ·F·pts1[i] ≈ 0 in a least-squares
// sense. It requires at least 8 correspondences and returns
// ErrDegenerateGeometry when the configuration (collinear or coincident
// points) cannot determine a unique solution.
func (EightPoint) Estimate(pts1, pts2 []r2.Point) (FundamentalMatrix, error) {
	return eightPointFit(pts1, pts2)
}

func eightPointFit(pts1, pts2 []r2.Point) (FundamentalMatrix, error) {
	if len(pts1) != len(pts2) {
		return FundamentalMatrix{}, ErrLengthMismatch
	}
	n := len(pts1)
	if n < minFundamentalPoints {
		return FundamentalMatrix{}, ErrUnderdetermined
	}

	// Hartley normalization: condition the DLT system by moving each point
	// set to its centroid and scaling the mean radius to sqrt(2).
	norm1, t1, ok := normalizePoints(pts1)
	if !ok {
		return FundamentalMatrix{}, ErrDegenerateGeometry
	}
	norm2, t2, ok := normalizePoints(pts2)
	if !ok {
		return FundamentalMatrix{}, ErrDegenerateGeometry
	}

	// Each correspondence contributes one row of the epipolar constraint
	// p2ᵀ·F·p1 = 0, linear in the 9 entries of F.
	a := mat.NewDense(n, 9, nil)
	for i := 0; i < n; i++ {
		x1, y1 := norm1[i].X, norm1[i].Y
		x2, y2 := norm2[i].X, norm2[i].Y
		a.SetRow(i, []float64{
			x2 * x1, x2 * y1, x2,
			y2 * x1, y2 * y1, y2,
			x1, y1, 1,
		})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFullV) {
		return FundamentalMatrix{}, ErrDegenerateGeometry
	}
	sv := svd.Values(nil)
	// Rank below 8 means the null space has more than one dimension and the
	// solution is not unique.
	if sv[7] <= sv[0]*1e-9 {
		return FundamentalMatrix{}, ErrDegenerateGeometry
	}
	var v mat.Dense
	svd.VTo(&v)

	// The solution is the right singular vector of the smallest singular
	// value, reshaped to 3x3.
	var fn FundamentalMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			fn[i][j] = v.At(3*i+j, 8)
		}
	}

	fn, err := enforceRankTwo(fn)
	if err != nil {
		return FundamentalMatrix{}, err
	}

	// Undo the normalization: F = T2ᵀ · Fn · T1.
	f := mul3(mul3(t2.transposed(), fn), t1)
	return scaleFundamental(f), nil
}

// normalizePoints translates a point set to its centroid and scales it so the
// mean distance from the origin is sqrt(2). Returns the similarity transform
// applied, as a 3x3 homogeneous matrix. ok is false when the points are all
// coincident.
func normalizePoints(pts []r2.Point) ([]r2.Point, FundamentalMatrix, bool) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	if meanDist < 1e-9 {
		return nil, FundamentalMatrix{}, false
	}
	s := math.Sqrt2 / meanDist

	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	t := FundamentalMatrix{
		{s, 0, -s * cx},
		{0, s, -s * cy},
		{0, 0, 1},
	}
	return out, t, true
}

// enforceRankTwo projects a 3x3 matrix onto the closest rank-2 matrix by
// zeroing its smallest singular value. A fundamental matrix must be rank 2
// for its epipolar lines to meet in an epipole.
func enforceRankTwo(f FundamentalMatrix) (FundamentalMatrix, error) {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, f[i][j])
		}
	}
	var svd mat.SVD
	if !svd.Factorize(d, mat.SVDFull) {
		return FundamentalMatrix{}, ErrDegenerateGeometry
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var out FundamentalMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = sv[0]*u.At(i, 0)*v.At(j, 0) + sv[1]*u.At(i, 1)*v.At(j, 1)
		}
	}
	return out, nil
}

// scaleFundamental fixes the arbitrary projective scale of F, preferring the
// convention F[2][2] = 1 and falling back to unit maximum entry when the
// bottom-right element vanishes.
func scaleFundamental(f FundamentalMatrix) FundamentalMatrix {
	pivot := f[2][2]
	if math.Abs(pivot) < 1e-12 {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if math.Abs(f[i][j]) > math.Abs(pivot) {
					pivot = f[i][j]
				}
			}
		}
	}
	if pivot == 0 {
		return f
	}
	var out FundamentalMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = f[i][j] / pivot
		}
	}
	return out
}

func mul3(a, b FundamentalMatrix) FundamentalMatrix {
	var out FundamentalMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}
