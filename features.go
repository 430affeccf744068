package stereomatch

import (
	"context"
	"fmt"
	"image"

	"github.com/biotinker/stereomatch/epipolar"
)

type staticFeatures struct {
	keypoints   []epipolar.Keypoint
	descriptors []epipolar.Descriptor
}

// StaticSource serves precomputed keypoints and descriptors, letting the
// pipeline run on features produced outside this process. Images are looked
// up by interface identity, so callers must pass the same image value they
// registered (a placeholder such as *image.Uniform works).
type StaticSource struct {
	byImage map[image.Image]staticFeatures
}

// NewStaticSource returns an empty source.
func NewStaticSource() *StaticSource {
	return &StaticSource{byImage: map[image.Image]staticFeatures{}}
}

// Register associates precomputed features with an image key.
func (s *StaticSource) Register(img image.Image, kps []epipolar.Keypoint, descs []epipolar.Descriptor) {
	s.byImage[img] = staticFeatures{keypoints: kps, descriptors: descs}
}

// Detect implements epipolar.FeatureSource.
func (s *StaticSource) Detect(ctx context.Context, img image.Image) ([]epipolar.Keypoint, error) {
	feats, ok := s.byImage[img]
	if !ok {
		return nil, fmt.Errorf("no features registered for image %v", img)
	}
	return feats.keypoints, nil
}

// Extract implements epipolar.FeatureSource. The keypoint argument is assumed
// to be the slice Detect returned for the same image.
func (s *StaticSource) Extract(ctx context.Context, img image.Image, kps []epipolar.Keypoint) ([]epipolar.Descriptor, error) {
	feats, ok := s.byImage[img]
	if !ok {
		return nil, fmt.Errorf("no features registered for image %v", img)
	}
	if len(kps) != len(feats.descriptors) {
		return nil, fmt.Errorf("have %d descriptors for %d keypoints", len(feats.descriptors), len(kps))
	}
	return feats.descriptors, nil
}
