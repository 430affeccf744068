//go:build withcv

package stereomatch

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"github.com/biotinker/stereomatch/epipolar"
)

// ORBSource detects ORB keypoints and descriptors through OpenCV. Detection
// and extraction happen in one DetectAndCompute call; Extract returns the
// descriptors cached by the preceding Detect on the same image.
type ORBSource struct {
	maxFeatures int

	mu    sync.Mutex
	cache map[image.Image][]epipolar.Descriptor
}

// NewORBSource returns an ORB-backed feature source. maxFeatures <= 0 selects
// OpenCV's default of 500.
func NewORBSource(maxFeatures int) (epipolar.FeatureSource, error) {
	if maxFeatures <= 0 {
		maxFeatures = 500
	}
	return &ORBSource{
		maxFeatures: maxFeatures,
		cache:       map[image.Image][]epipolar.Descriptor{},
	}, nil
}

// Detect implements epipolar.FeatureSource.
func (s *ORBSource) Detect(ctx context.Context, img image.Image) ([]epipolar.Keypoint, error) {
	m, err := toGrayMat(img)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	orb := gocv.NewORB()
	defer orb.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	cvKps, desc := orb.DetectAndCompute(m, mask)
	defer desc.Close()

	if len(cvKps) > s.maxFeatures {
		cvKps = cvKps[:s.maxFeatures]
	}

	kps := make([]epipolar.Keypoint, len(cvKps))
	descs := make([]epipolar.Descriptor, len(cvKps))
	for i, kp := range cvKps {
		kps[i] = epipolar.Keypoint{
			Point:    r2.Point{X: kp.X, Y: kp.Y},
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
		}
		row := make(epipolar.Descriptor, desc.Cols())
		for j := 0; j < desc.Cols(); j++ {
			row[j] = float32(desc.GetUCharAt(i, j))
		}
		descs[i] = row
	}

	s.mu.Lock()
	s.cache[img] = descs
	s.mu.Unlock()
	return kps, nil
}

// Extract implements epipolar.FeatureSource, serving the descriptors computed
// alongside the keypoints in Detect.
func (s *ORBSource) Extract(ctx context.Context, img image.Image, kps []epipolar.Keypoint) ([]epipolar.Descriptor, error) {
	s.mu.Lock()
	descs, ok := s.cache[img]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no descriptors computed for image; call Detect first")
	}
	if len(descs) != len(kps) {
		return nil, fmt.Errorf("have %d descriptors for %d keypoints", len(descs), len(kps))
	}
	return descs, nil
}

func toGrayMat(img image.Image) (gocv.Mat, error) {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}
	m, err := gocv.ImageToMatRGBA(rgba)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("converting image: %w", err)
	}
	defer m.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(m, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}
