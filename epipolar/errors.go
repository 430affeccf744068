package epipolar

import "errors"

var (
	// ErrUnderdetermined is returned when fewer than 8 correspondences reach
	// fundamental-matrix estimation.
	ErrUnderdetermined = errors.New("fewer than 8 correspondences for fundamental matrix estimation")

	// ErrDegenerateGeometry is returned when the point configuration cannot
	// determine a fundamental matrix (collinear or coincident points).
	ErrDegenerateGeometry = errors.New("degenerate point configuration")

	// ErrNoModelFound is returned when RANSAC exhausts its iterations without
	// a model supported by at least 8 inliers.
	ErrNoModelFound = errors.New("no fundamental matrix with sufficient inlier support")

	// ErrDescriptorMismatch is returned when descriptor vectors of unequal
	// length are compared.
	ErrDescriptorMismatch = errors.New("descriptor lengths differ")

	// ErrNoSource is returned when a matcher is run without a feature source
	// or neighbor search installed.
	ErrNoSource = errors.New("no feature source or neighbor search configured")

	// ErrLengthMismatch is returned when paired point slices differ in length.
	ErrLengthMismatch = errors.New("point slices have different lengths")
)
