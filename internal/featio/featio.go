// Package featio reads precomputed image features from JSON files, so the
// pipeline can run on keypoints and descriptors produced by an external
// detector.
package featio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r2"

	"github.com/biotinker/stereomatch/epipolar"
)

// KeypointRecord is the on-disk form of one keypoint.
type KeypointRecord struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size,omitempty"`
	Angle    float64 `json:"angle,omitempty"`
	Response float64 `json:"response,omitempty"`
	Octave   int     `json:"octave,omitempty"`
}

// File is the on-disk form of one image's features. Descriptors align with
// keypoints by position.
type File struct {
	Keypoints   []KeypointRecord `json:"keypoints"`
	Descriptors [][]float32      `json:"descriptors"`
}

// Load reads keypoints and descriptors from a feature file.
func Load(path string) ([]epipolar.Keypoint, []epipolar.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading feature file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parsing feature file: %w", err)
	}
	if len(f.Keypoints) != len(f.Descriptors) {
		return nil, nil, fmt.Errorf("feature file %s: %d keypoints but %d descriptors",
			path, len(f.Keypoints), len(f.Descriptors))
	}

	kps := make([]epipolar.Keypoint, len(f.Keypoints))
	descs := make([]epipolar.Descriptor, len(f.Descriptors))
	for i, kr := range f.Keypoints {
		kps[i] = epipolar.Keypoint{
			Point:    r2.Point{X: kr.X, Y: kr.Y},
			Size:     kr.Size,
			Angle:    kr.Angle,
			Response: kr.Response,
			Octave:   kr.Octave,
		}
		descs[i] = epipolar.Descriptor(f.Descriptors[i])
	}
	return kps, descs, nil
}
