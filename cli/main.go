package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/rdk/logging"

	"github.com/biotinker/stereomatch"
	"github.com/biotinker/stereomatch/epipolar"
	"github.com/biotinker/stereomatch/internal/config"
	"github.com/biotinker/stereomatch/internal/featio"
)

func main() {
	feat1 := flag.String("features1", "", "path to precomputed features JSON for image 1")
	feat2 := flag.String("features2", "", "path to precomputed features JSON for image 2")
	img1Path := flag.String("img1", "", "path to image 1 (requires a build with -tags withcv)")
	img2Path := flag.String("img2", "", "path to image 2 (requires a build with -tags withcv)")
	cfgPath := flag.String("config", "", "optional JSON run configuration file")
	ratio := flag.Float64("ratio", 0, "override the nearest-neighbor ratio threshold")
	distance := flag.Float64("distance", 0, "override the epipolar distance tolerance (pixels)")
	noRefine := flag.Bool("no-refine", false, "skip 8-point refinement of the fundamental matrix")
	flag.Parse()

	logger := logging.NewLogger("stereomatch-cli")

	cfg := epipolar.DefaultConfig()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			logger.Fatal(err)
		}
		cfg = *loaded
	}
	if *ratio > 0 {
		cfg.Ratio = *ratio
	}
	if *distance > 0 {
		cfg.Distance = *distance
	}
	if *noRefine {
		cfg.RefineF = false
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var source epipolar.FeatureSource
	var img1, img2 image.Image

	switch {
	case *feat1 != "" && *feat2 != "":
		kps1, descs1, err := featio.Load(*feat1)
		if err != nil {
			logger.Fatal(err)
		}
		kps2, descs2, err := featio.Load(*feat2)
		if err != nil {
			logger.Fatal(err)
		}
		static := stereomatch.NewStaticSource()
		img1 = image.NewUniform(color.Black)
		img2 = image.NewUniform(color.Black)
		static.Register(img1, kps1, descs1)
		static.Register(img2, kps2, descs2)
		source = static
		logger.Infof("loaded %d and %d precomputed keypoints", len(kps1), len(kps2))
	case *img1Path != "" && *img2Path != "":
		orb, err := stereomatch.NewORBSource(0)
		if err != nil {
			logger.Fatal(err)
		}
		source = orb
		if img1, err = loadImage(*img1Path); err != nil {
			logger.Fatal(err)
		}
		if img2, err = loadImage(*img2Path); err != nil {
			logger.Fatal(err)
		}
	default:
		logger.Fatal("either -features1/-features2 or -img1/-img2 are required")
	}

	pipeline := stereomatch.NewPipeline(logger, source, &cfg)
	result, err := pipeline.Run(ctx, img1, img2)
	if err != nil {
		logger.Fatal(err)
	}

	fmt.Printf("matches: %d\n", len(result.Matches))
	fmt.Println("fundamental matrix:")
	for _, row := range result.Fundamental {
		fmt.Printf("  [%12.6g %12.6g %12.6g]\n", row[0], row[1], row[2])
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	return img, nil
}
