// Package config loads run configuration from JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"

	"github.com/biotinker/stereomatch/epipolar"
)

// Load reads a JSON run configuration. The file is decoded over the defaults,
// so a partial file overrides only the keys it names. Keys match the
// epipolar.Config field names case-insensitively (ratio, refinef, distance,
// confidence, maxiterations).
func Load(path string) (*epipolar.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg := epipolar.DefaultConfig()
	// JSON numbers arrive as float64; weak typing lets them fill int fields.
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}
