package epipolar

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/golang/geo/r2"
)

// stubSource serves canned keypoints per image, keyed by identity.
type stubSource struct {
	kps map[image.Image][]Keypoint
}

func (s *stubSource) Detect(ctx context.Context, img image.Image) ([]Keypoint, error) {
	return s.kps[img], nil
}

func (s *stubSource) Extract(ctx context.Context, img image.Image, kps []Keypoint) ([]Descriptor, error) {
	descs := make([]Descriptor, len(kps))
	for i := range descs {
		descs[i] = Descriptor{float32(i)}
	}
	return descs, nil
}

// identitySearch pairs descriptor i with train descriptor i unambiguously, in
// both directions.
type identitySearch struct{}

func (identitySearch) KNNMatch(ctx context.Context, query, train []Descriptor, k int) ([]DirectedMatch, error) {
	out := make([]DirectedMatch, len(query))
	for i := range query {
		second := (i + 1) % len(train)
		out[i] = DirectedMatch{
			Query: i,
			Candidates: []Candidate{
				{Train: i, Distance: 1.0},
				{Train: second, Distance: 10.0},
			},
		}
	}
	return out, nil
}

// explodingEstimator fails the test if the matcher ever invokes it.
type explodingEstimator struct{ t *testing.T }

func (e explodingEstimator) EstimateRobust(pts1, pts2 []r2.Point) (FundamentalMatrix, []bool, error) {
	e.t.Fatal("robust estimator invoked despite underdetermined input")
	return FundamentalMatrix{}, nil, nil
}

// maskEstimator returns a canned model and inlier mask.
type maskEstimator struct {
	f    FundamentalMatrix
	mask []bool
}

func (m maskEstimator) EstimateRobust(pts1, pts2 []r2.Point) (FundamentalMatrix, []bool, error) {
	return m.f, m.mask, nil
}

// capturingExact records the point sets handed to refinement.
type capturingExact struct {
	got1, got2 []r2.Point
	f          FundamentalMatrix
}

func (c *capturingExact) Estimate(pts1, pts2 []r2.Point) (FundamentalMatrix, error) {
	c.got1 = pts1
	c.got2 = pts2
	return c.f, nil
}

type recordingObserver struct {
	stages []Stage
}

func (r *recordingObserver) StageDone(stage Stage, elapsed time.Duration, kept int) {
	r.stages = append(r.stages, stage)
}

// matcherFixture builds a matcher over n geometrically-consistent keypoints
// with unambiguous identity matching.
func matcherFixture(n int, seed int64) (*RobustMatcher, image.Image, image.Image, FundamentalMatrix) {
	fTrue := testFundamental()
	pts1, pts2 := generateCorrespondences(fTrue, n, seed)

	kps1 := make([]Keypoint, n)
	kps2 := make([]Keypoint, n)
	for i := 0; i < n; i++ {
		kps1[i] = Keypoint{Point: pts1[i]}
		kps2[i] = Keypoint{Point: pts2[i]}
	}

	img1 := image.NewUniform(color.Black)
	img2 := image.NewUniform(color.White)
	source := &stubSource{kps: map[image.Image][]Keypoint{img1: kps1, img2: kps2}}

	m := NewRobustMatcher(source, identitySearch{}, nil)
	return m, img1, img2, fTrue
}

func TestMatch_EndToEnd(t *testing.T) {
	const n = 25
	m, img1, img2, _ := matcherFixture(n, 41)

	result, err := m.Match(context.Background(), img1, img2)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(result.Matches) != n {
		t.Fatalf("got %d matches, want %d", len(result.Matches), n)
	}
	for i, mt := range result.Matches {
		if mt.Query != i || mt.Train != i {
			t.Errorf("match %d = (%d,%d), want (%d,%d)", i, mt.Query, mt.Train, i, i)
		}
	}

	var worst float64
	for _, mt := range result.Matches {
		p1 := result.Keypoints1[mt.Query].Point
		p2 := result.Keypoints2[mt.Train].Point
		if d := result.Fundamental.EpipolarDistance(p1, p2); d > worst {
			worst = d
		}
	}
	if worst > 1e-6 {
		t.Errorf("worst residual under refined F: %.3g px", worst)
	}
	t.Logf("%d matches, worst residual %.3g px", len(result.Matches), worst)
}

func TestMatch_StagesObservedInOrder(t *testing.T) {
	m, img1, img2, _ := matcherFixture(25, 43)
	obs := &recordingObserver{}
	m.SetObserver(obs)

	if _, err := m.Match(context.Background(), img1, img2); err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	want := []Stage{StageDetect, StageExtract, StageKNN, StageRatio, StageSymmetry, StageRANSAC}
	if len(obs.stages) != len(want) {
		t.Fatalf("observed %d stages, want %d", len(obs.stages), len(want))
	}
	for i, s := range obs.stages {
		if s != want[i] {
			t.Errorf("stage %d = %s, want %s", i, s, want[i])
		}
	}
}

func TestMatch_SevenMatchesUnderdetermined(t *testing.T) {
	m, img1, img2, _ := matcherFixture(7, 47)
	// Seven symmetric matches must fail before robust estimation starts.
	m.SetRobustEstimator(explodingEstimator{t})

	_, err := m.Match(context.Background(), img1, img2)
	if !errors.Is(err, ErrUnderdetermined) {
		t.Fatalf("err = %v, want ErrUnderdetermined", err)
	}
}

func TestMatch_NoSource(t *testing.T) {
	m := NewRobustMatcher(nil, nil, nil)
	if _, err := m.Match(context.Background(), nil, nil); !errors.Is(err, ErrNoSource) {
		t.Fatalf("err = %v, want ErrNoSource", err)
	}
}

func TestVerifyMatches_StableSubsequence(t *testing.T) {
	fTrue := testFundamental()
	pts1, pts2 := generateCorrespondences(fTrue, 12, 53)

	kps1 := make([]Keypoint, 12)
	kps2 := make([]Keypoint, 12)
	matches := make([]Match, 12)
	for i := 0; i < 12; i++ {
		kps1[i] = Keypoint{Point: pts1[i]}
		kps2[i] = Keypoint{Point: pts2[i]}
		matches[i] = Match{Query: i, Train: i, Distance: float64(i)}
	}

	// Canned mask drops entries 3 and 7.
	mask := make([]bool, 12)
	for i := range mask {
		mask[i] = i != 3 && i != 7
	}
	m := NewRobustMatcher(nil, nil, nil)
	m.SetRobustEstimator(maskEstimator{f: fTrue, mask: mask})
	m.SetRefine(false)

	inliers, f, err := m.VerifyMatches(matches, kps1, kps2)
	if err != nil {
		t.Fatalf("VerifyMatches failed: %v", err)
	}
	if len(inliers) != 10 {
		t.Fatalf("got %d inliers, want 10", len(inliers))
	}
	prev := -1
	for _, mt := range inliers {
		if mt.Query == 3 || mt.Query == 7 {
			t.Errorf("masked-out match %d survived", mt.Query)
		}
		if mt.Query <= prev {
			t.Errorf("output order not preserved: %d after %d", mt.Query, prev)
		}
		prev = mt.Query
	}
	// Refinement disabled: the robust candidate is returned as-is.
	if f != fTrue {
		t.Error("refine disabled but returned matrix differs from the robust candidate")
	}
}

func TestVerifyMatches_RefineUsesExactlyTheInliers(t *testing.T) {
	fTrue := testFundamental()
	pts1, pts2 := generateCorrespondences(fTrue, 14, 59)

	kps1 := make([]Keypoint, 14)
	kps2 := make([]Keypoint, 14)
	matches := make([]Match, 14)
	for i := 0; i < 14; i++ {
		kps1[i] = Keypoint{Point: pts1[i]}
		kps2[i] = Keypoint{Point: pts2[i]}
		matches[i] = Match{Query: i, Train: i}
	}

	mask := make([]bool, 14)
	for i := range mask {
		mask[i] = i%3 != 2 // drop 2, 5, 8, 11
	}
	refined := FundamentalMatrix{{0, 1, 0}, {1, 0, 0}, {0, 0, 1}}
	exact := &capturingExact{f: refined}

	m := NewRobustMatcher(nil, nil, nil)
	m.SetRobustEstimator(maskEstimator{f: fTrue, mask: mask})
	m.SetExactEstimator(exact)
	m.SetRefine(true)

	inliers, f, err := m.VerifyMatches(matches, kps1, kps2)
	if err != nil {
		t.Fatalf("VerifyMatches failed: %v", err)
	}
	if f != refined {
		t.Error("refined matrix not returned")
	}
	if len(exact.got1) != len(inliers) {
		t.Fatalf("refinement saw %d points for %d inliers", len(exact.got1), len(inliers))
	}
	for i, mt := range inliers {
		if exact.got1[i] != kps1[mt.Query].Point || exact.got2[i] != kps2[mt.Train].Point {
			t.Errorf("refinement point %d does not come from inlier match %+v", i, mt)
		}
	}
}

func TestVerifyMatches_RefineWithTooFewInliers(t *testing.T) {
	kps1 := make([]Keypoint, 9)
	kps2 := make([]Keypoint, 9)
	matches := make([]Match, 9)
	for i := range matches {
		matches[i] = Match{Query: i, Train: i}
	}

	// Mask keeps only 7: refinement cannot proceed.
	mask := make([]bool, 9)
	for i := 0; i < 7; i++ {
		mask[i] = true
	}
	m := NewRobustMatcher(nil, nil, nil)
	m.SetRobustEstimator(maskEstimator{mask: mask})
	m.SetRefine(true)

	_, _, err := m.VerifyMatches(matches, kps1, kps2)
	if !errors.Is(err, ErrUnderdetermined) {
		t.Fatalf("err = %v, want ErrUnderdetermined", err)
	}
}

func TestSetters_ApplyToNextRun(t *testing.T) {
	m := NewRobustMatcher(nil, nil, nil)
	m.SetRatio(0.8)
	m.SetDistance(1.5)
	m.SetConfidence(0.95)
	m.SetRefine(false)

	cfg := m.Config()
	if cfg.Ratio != 0.8 || cfg.Distance != 1.5 || cfg.Confidence != 0.95 || cfg.RefineF {
		t.Errorf("config after setters: %+v", cfg)
	}
}
