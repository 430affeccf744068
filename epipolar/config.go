package epipolar

// Config holds all parameters for one matching run. Settings are fixed for
// the lifetime of a run and apply uniformly to both matching directions.
type Config struct {
	// Ratio is the maximum allowed best/second-best distance ratio in the
	// nearest-neighbor ratio test. Entries above it are rejected as ambiguous.
	Ratio float64
	// RefineF re-estimates the fundamental matrix from the inlier set with
	// the exact 8-point method after RANSAC.
	RefineF bool
	// Distance is the maximum symmetric epipolar distance, in pixels, for a
	// correspondence to count as an inlier.
	Distance float64
	// Confidence is the target probability that RANSAC has seen at least one
	// all-inlier sample before stopping.
	Confidence float64
	// MaxIterations caps the RANSAC hypothesis count regardless of the
	// confidence-derived estimate.
	MaxIterations int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Ratio:         0.65,
		RefineF:       true,
		Distance:      3.0,
		Confidence:    0.99,
		MaxIterations: 2000,
	}
}
