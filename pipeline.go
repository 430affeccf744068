// Package stereomatch wires the epipolar correspondence-validation core to
// concrete feature sources, neighbor search, logging, and configuration.
package stereomatch

import (
	"context"
	"image"
	"time"

	"go.viam.com/rdk/logging"

	"github.com/biotinker/stereomatch/epipolar"
)

// LogObserver logs each pipeline stage's duration and survivor count.
type LogObserver struct {
	logger logging.Logger
}

// NewLogObserver returns an observer writing to the given logger.
func NewLogObserver(logger logging.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// StageDone implements epipolar.StageObserver.
func (o *LogObserver) StageDone(stage epipolar.Stage, elapsed time.Duration, kept int) {
	o.logger.Infof("stage %s: kept %d (%v)", stage, kept, elapsed)
}

// Pipeline runs the robust matcher with logging and stage timing attached.
// Timing lives here, outside the algorithm, so the core stays observation-free.
type Pipeline struct {
	logger  logging.Logger
	matcher *epipolar.RobustMatcher
}

// NewPipeline builds a pipeline around the given feature source using the
// brute-force neighbor search. A nil cfg selects the defaults.
func NewPipeline(logger logging.Logger, source epipolar.FeatureSource, cfg *epipolar.Config) *Pipeline {
	m := epipolar.NewRobustMatcher(source, BruteForce{}, cfg)
	m.SetObserver(NewLogObserver(logger))
	return &Pipeline{logger: logger, matcher: m}
}

// Matcher exposes the underlying matcher for setter adjustments between runs.
func (p *Pipeline) Matcher() *epipolar.RobustMatcher { return p.matcher }

// Run matches an image pair and logs the outcome.
func (p *Pipeline) Run(ctx context.Context, img1, img2 image.Image) (*epipolar.MatchResult, error) {
	result, err := p.matcher.Match(ctx, img1, img2)
	if err != nil {
		return nil, err
	}
	p.logger.Infof("validated %d matches (from %d/%d keypoints)",
		len(result.Matches), len(result.Keypoints1), len(result.Keypoints2))
	return result, nil
}
