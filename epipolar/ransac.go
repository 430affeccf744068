package epipolar

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
)

// RANSACEstimator fits a fundamental matrix to contaminated correspondences
// by drawing random 8-point minimal samples and keeping the hypothesis with
// the largest inlier support under the epipolar distance tolerance.
type RANSACEstimator struct {
	// Distance is the inlier tolerance in pixels.
	Distance float64
	// Confidence is the target probability of having drawn at least one
	// all-inlier sample; the iteration count adapts to it as the observed
	// inlier ratio improves.
	Confidence float64
	// MaxIterations caps the sample count; 0 means 2000.
	MaxIterations int
}

// NewRANSACEstimator builds an estimator from a run configuration.
func NewRANSACEstimator(cfg Config) *RANSACEstimator {
	return &RANSACEstimator{
		Distance:      cfg.Distance,
		Confidence:    cfg.Confidence,
		MaxIterations: cfg.MaxIterations,
	}
}

// EstimateRobust returns the best-supported fundamental matrix hypothesis and
// the per-correspondence inlier mask, aligned with the input order. It fails
// with ErrNoModelFound when no hypothesis gathers at least 8 inliers.
func (e *RANSACEstimator) EstimateRobust(pts1, pts2 []r2.Point) (FundamentalMatrix, []bool, error) {
	if len(pts1) != len(pts2) {
		return FundamentalMatrix{}, nil, ErrLengthMismatch
	}
	n := len(pts1)
	if n < minFundamentalPoints {
		return FundamentalMatrix{}, nil, ErrUnderdetermined
	}

	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = 2000
	}

	//nolint:gosec
	rng := rand.New(rand.NewSource(42))

	var best FundamentalMatrix
	var bestMask []bool
	bestCount := 0
	required := maxIter

	s1 := make([]r2.Point, minFundamentalPoints)
	s2 := make([]r2.Point, minFundamentalPoints)

	for iter := 0; iter < required; iter++ {
		idx := sampleDistinct(rng, n, minFundamentalPoints)
		for i, j := range idx {
			s1[i] = pts1[j]
			s2[i] = pts2[j]
		}

		f, err := eightPointFit(s1, s2)
		if err != nil {
			// Degenerate sample; draw another.
			continue
		}

		mask := make([]bool, n)
		count := 0
		for i := 0; i < n; i++ {
			if f.EpipolarDistance(pts1[i], pts2[i]) <= e.Distance {
				mask[i] = true
				count++
			}
		}

		if count > bestCount {
			bestCount = count
			best = f
			bestMask = mask
			// Shrink the iteration budget as the inlier ratio estimate improves.
			need := requiredIterations(count, n, e.Confidence)
			if need < required {
				required = need
			}
		}
	}

	if bestCount < minFundamentalPoints {
		return FundamentalMatrix{}, nil, ErrNoModelFound
	}
	return best, bestMask, nil
}

// requiredIterations is the standard RANSAC stopping bound: the number of
// samples after which the probability of never having drawn an all-inlier
// 8-point sample is below 1-confidence, given inlierCount/n as the inlier
// ratio estimate.
func requiredIterations(inlierCount, n int, confidence float64) int {
	if confidence <= 0 {
		return 1
	}
	if confidence >= 1 {
		return math.MaxInt32
	}
	w := float64(inlierCount) / float64(n)
	pSample := math.Pow(w, float64(minFundamentalPoints))
	if pSample >= 1 {
		return 1
	}
	if pSample <= 0 {
		return math.MaxInt32
	}
	need := math.Log(1-confidence) / math.Log(1-pSample)
	if need < 1 {
		return 1
	}
	if need > float64(math.MaxInt32) {
		return math.MaxInt32
	}
	return int(math.Ceil(need))
}

// sampleDistinct draws k distinct indices in [0, n).
func sampleDistinct(rng *rand.Rand, n, k int) []int {
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		for {
			idx[i] = rng.Intn(n)
			unique := true
			for j := 0; j < i; j++ {
				if idx[i] == idx[j] {
					unique = false
					break
				}
			}
			if unique {
				break
			}
		}
	}
	return idx
}
