//go:build !withcv

package stereomatch

import (
	"errors"

	"github.com/biotinker/stereomatch/epipolar"
)

// NewORBSource requires a build with OpenCV support.
func NewORBSource(maxFeatures int) (epipolar.FeatureSource, error) {
	return nil, errors.New("ORB feature source requires an OpenCV build (go build -tags withcv)")
}
