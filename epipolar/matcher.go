package epipolar

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/golang/geo/r2"
)

// FeatureSource detects keypoints in an image and extracts a descriptor per
// keypoint. Implementations are interchangeable; the matcher only relies on
// Extract preserving keypoint order.
type FeatureSource interface {
	Detect(ctx context.Context, img image.Image) ([]Keypoint, error)
	Extract(ctx context.Context, img image.Image, kps []Keypoint) ([]Descriptor, error)
}

// NeighborSearch returns, for each query descriptor, its k nearest train
// descriptors sorted by ascending distance. An entry may carry fewer than k
// candidates when the train set is small.
type NeighborSearch interface {
	KNNMatch(ctx context.Context, query, train []Descriptor, k int) ([]DirectedMatch, error)
}

// RobustEstimator fits a fundamental matrix to correspondences that may
// contain outliers, returning the inlier mask alongside the model.
type RobustEstimator interface {
	EstimateRobust(pts1, pts2 []r2.Point) (FundamentalMatrix, []bool, error)
}

// ExactEstimator fits a fundamental matrix from correspondences assumed to
// all be inliers; used for refinement.
type ExactEstimator interface {
	Estimate(pts1, pts2 []r2.Point) (FundamentalMatrix, error)
}

// StageObserver receives a callback after each pipeline stage with the time
// it took and how many items survived it. Observation must not influence the
// computation.
type StageObserver interface {
	StageDone(stage Stage, elapsed time.Duration, kept int)
}

// RobustMatcher validates feature correspondences between two images and
// recovers the fundamental matrix relating the views. Detection, extraction,
// and neighbor search are delegated to injected collaborators; the matcher
// owns the ratio, symmetry, and geometric-consistency filters.
//
// Configuration applies to a whole run; setters take effect on the next call
// to Match or VerifyMatches, never mid-run.
type RobustMatcher struct {
	source   FeatureSource
	search   NeighborSearch
	robust   RobustEstimator
	exact    ExactEstimator
	observer StageObserver
	cfg      Config
}

// NewRobustMatcher creates a matcher with the given collaborators. A nil cfg
// selects DefaultConfig.
func NewRobustMatcher(source FeatureSource, search NeighborSearch, cfg *Config) *RobustMatcher {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	return &RobustMatcher{source: source, search: search, cfg: *cfg}
}

// SetFeatureSource swaps the keypoint detector/descriptor extractor.
func (m *RobustMatcher) SetFeatureSource(s FeatureSource) { m.source = s }

// SetNeighborSearch swaps the nearest-neighbor search backend.
func (m *RobustMatcher) SetNeighborSearch(s NeighborSearch) { m.search = s }

// SetRobustEstimator overrides the default RANSAC estimator. A custom
// estimator ignores the Distance/Confidence settings on this matcher.
func (m *RobustMatcher) SetRobustEstimator(e RobustEstimator) { m.robust = e }

// SetExactEstimator overrides the default 8-point refinement estimator.
func (m *RobustMatcher) SetExactEstimator(e ExactEstimator) { m.exact = e }

// SetObserver installs a per-stage observer; nil disables observation.
func (m *RobustMatcher) SetObserver(o StageObserver) { m.observer = o }

// SetRatio sets the nearest-neighbor ratio threshold.
func (m *RobustMatcher) SetRatio(r float64) { m.cfg.Ratio = r }

// SetDistance sets the epipolar inlier tolerance in pixels.
func (m *RobustMatcher) SetDistance(d float64) { m.cfg.Distance = d }

// SetConfidence sets the RANSAC confidence level.
func (m *RobustMatcher) SetConfidence(c float64) { m.cfg.Confidence = c }

// SetRefine controls whether the fundamental matrix is re-estimated from the
// inlier set after RANSAC.
func (m *RobustMatcher) SetRefine(refine bool) { m.cfg.RefineF = refine }

// Config returns a copy of the current settings.
func (m *RobustMatcher) Config() Config { return m.cfg }

// Match runs the full validation pipeline on an image pair: detect and
// extract features in both images, search nearest neighbors in both
// directions, thin with the ratio test, keep mutually-confirmed matches, and
// validate the survivors geometrically. The returned matches are the
// geometric inliers; the fundamental matrix explains them.
func (m *RobustMatcher) Match(ctx context.Context, img1, img2 image.Image) (*MatchResult, error) {
	if m.source == nil || m.search == nil {
		return nil, ErrNoSource
	}

	start := time.Now()
	kps1, err := m.source.Detect(ctx, img1)
	if err != nil {
		return nil, fmt.Errorf("detecting keypoints in image 1: %w", err)
	}
	kps2, err := m.source.Detect(ctx, img2)
	if err != nil {
		return nil, fmt.Errorf("detecting keypoints in image 2: %w", err)
	}
	m.observe(StageDetect, start, len(kps1)+len(kps2))

	start = time.Now()
	desc1, err := m.source.Extract(ctx, img1, kps1)
	if err != nil {
		return nil, fmt.Errorf("extracting descriptors from image 1: %w", err)
	}
	desc2, err := m.source.Extract(ctx, img2, kps2)
	if err != nil {
		return nil, fmt.Errorf("extracting descriptors from image 2: %w", err)
	}
	m.observe(StageExtract, start, len(desc1)+len(desc2))

	start = time.Now()
	fwd, err := m.search.KNNMatch(ctx, desc1, desc2, 2)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor search 1->2: %w", err)
	}
	rev, err := m.search.KNNMatch(ctx, desc2, desc1, 2)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor search 2->1: %w", err)
	}
	m.observe(StageKNN, start, len(fwd)+len(rev))

	start = time.Now()
	removed := RatioTest(fwd, m.cfg.Ratio)
	removed += RatioTest(rev, m.cfg.Ratio)
	m.observe(StageRatio, start, len(fwd)+len(rev)-removed)

	start = time.Now()
	sym := SymmetryTest(fwd, rev)
	m.observe(StageSymmetry, start, len(sym))

	start = time.Now()
	inliers, f, err := m.VerifyMatches(sym, kps1, kps2)
	if err != nil {
		return nil, err
	}
	m.observe(StageRANSAC, start, len(inliers))

	return &MatchResult{
		Matches:     inliers,
		Keypoints1:  kps1,
		Keypoints2:  kps2,
		Fundamental: f,
	}, nil
}

// VerifyMatches validates an already-assembled match list geometrically:
// robustly estimate the fundamental matrix, keep the matches the inlier mask
// selects (order preserved), and, when refinement is enabled, re-estimate F
// exactly from the inlier set. Fewer than 8 input matches is a hard failure
// surfaced as ErrUnderdetermined; estimator failures propagate unmasked.
func (m *RobustMatcher) VerifyMatches(matches []Match, kps1, kps2 []Keypoint) ([]Match, FundamentalMatrix, error) {
	if len(matches) < minFundamentalPoints {
		return nil, FundamentalMatrix{}, fmt.Errorf("geometric verification with %d matches: %w",
			len(matches), ErrUnderdetermined)
	}

	pts1, pts2 := correspondencePoints(matches, kps1, kps2)
	f, mask, err := m.robustEstimator().EstimateRobust(pts1, pts2)
	if err != nil {
		return nil, FundamentalMatrix{}, fmt.Errorf("robust estimation: %w", err)
	}

	inliers := make([]Match, 0, len(matches))
	for i, in := range mask {
		if in {
			inliers = append(inliers, matches[i])
		}
	}

	if m.cfg.RefineF {
		if len(inliers) < minFundamentalPoints {
			return nil, FundamentalMatrix{}, fmt.Errorf("refinement with %d inliers: %w",
				len(inliers), ErrUnderdetermined)
		}
		in1, in2 := correspondencePoints(inliers, kps1, kps2)
		f, err = m.exactEstimator().Estimate(in1, in2)
		if err != nil {
			return nil, FundamentalMatrix{}, fmt.Errorf("refinement: %w", err)
		}
	}

	return inliers, f, nil
}

// correspondencePoints resolves match indices to coordinate pairs. The slices
// are built fresh per call; nothing accumulates across runs.
func correspondencePoints(matches []Match, kps1, kps2 []Keypoint) ([]r2.Point, []r2.Point) {
	pts1 := make([]r2.Point, len(matches))
	pts2 := make([]r2.Point, len(matches))
	for i, mt := range matches {
		pts1[i] = kps1[mt.Query].Point
		pts2[i] = kps2[mt.Train].Point
	}
	return pts1, pts2
}

func (m *RobustMatcher) robustEstimator() RobustEstimator {
	if m.robust != nil {
		return m.robust
	}
	return NewRANSACEstimator(m.cfg)
}

func (m *RobustMatcher) exactEstimator() ExactEstimator {
	if m.exact != nil {
		return m.exact
	}
	return EightPoint{}
}

func (m *RobustMatcher) observe(stage Stage, start time.Time, kept int) {
	if m.observer != nil {
		m.observer.StageDone(stage, time.Since(start), kept)
	}
}
