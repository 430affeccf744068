package stereomatch

import (
	"context"
	"fmt"
	"math"

	"github.com/biotinker/stereomatch/epipolar"
)

// BruteForce is an exhaustive L2 nearest-neighbor search over descriptor
// sets. Exact by construction; quadratic, which is acceptable at typical
// per-image feature counts.
type BruteForce struct{}

// KNNMatch returns, for each query descriptor, its k nearest train
// descriptors by Euclidean distance, sorted ascending. Entries carry fewer
// than k candidates when the train set is smaller than k.
func (BruteForce) KNNMatch(ctx context.Context, query, train []epipolar.Descriptor, k int) ([]epipolar.DirectedMatch, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	matches := make([]epipolar.DirectedMatch, len(query))
	for i, q := range query {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := make([]epipolar.Candidate, 0, k)
		for j, t := range train {
			if len(t) != len(q) {
				return nil, fmt.Errorf("query %d (len %d) vs train %d (len %d): %w",
					i, len(q), j, len(t), epipolar.ErrDescriptorMismatch)
			}
			best = insertCandidate(best, k, epipolar.Candidate{Train: j, Distance: l2Distance(q, t)})
		}
		matches[i] = epipolar.DirectedMatch{Query: i, Candidates: best}
	}
	return matches, nil
}

// insertCandidate keeps best sorted ascending by distance, capped at k.
func insertCandidate(best []epipolar.Candidate, k int, c epipolar.Candidate) []epipolar.Candidate {
	pos := len(best)
	for pos > 0 && best[pos-1].Distance > c.Distance {
		pos--
	}
	if pos >= k {
		return best
	}
	if len(best) < k {
		best = append(best, epipolar.Candidate{})
	}
	copy(best[pos+1:], best[pos:])
	best[pos] = c
	return best
}

func l2Distance(a, b epipolar.Descriptor) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
