// package config holds the numeric knobs of the coverage core and loads them from YAML.
package config

import (
	"cmp"
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath is the environment variable Load falls back to when no path is given.
const EnvConfigPath = "COVERAGE_CONFIG"

// ErrTypeInvalid marks configurations rejected by Validate or Load.
const ErrTypeInvalid = "config-invalid"

// Config is the root configuration structure.
type Config struct {
	Mesh     MeshConfig     `yaml:"mesh"`
	Surface  SurfaceConfig  `yaml:"surface"`
	Bake     BakeConfig     `yaml:"bake"`
	Sampling SamplingConfig `yaml:"sampling"`
}

// MeshConfig drives adaptive subdivision of heightmap terrains.
type MeshConfig struct {
	GridStep     float32 `yaml:"grid_step"`
	MinCellSize  float32 `yaml:"min_cell_size"`
	MaxDepth     int     `yaml:"max_depth"`
	BaseCellSize float32 `yaml:"base_cell_size"`
	MaxCellSize  float32 `yaml:"max_cell_size"`
	FalloffSpeed float32 `yaml:"falloff_speed"`
	MaxDistance  float32 `yaml:"max_distance"`
}

// SurfaceConfig drives surface postprocessing and the overlay.
type SurfaceConfig struct {
	TargetEdgeLength    float32 `yaml:"target_edge_length"`
	MaxRefinePasses     int     `yaml:"max_refine_passes"`
	SmoothingIterations int     `yaml:"smoothing_iterations"`
	SmoothingFactor     float32 `yaml:"smoothing_factor"`
	FillHoles           bool    `yaml:"fill_holes"`
	MirrorCollision     bool    `yaml:"mirror_collision"`
	OverlayLayer        uint32  `yaml:"overlay_layer"`
	OverlayMaterial     string  `yaml:"overlay_material"`
	Workers             int     `yaml:"workers"`
}

// BakeConfig drives mask baking.
type BakeConfig struct {
	Resolution int     `yaml:"resolution"`
	BlurRadius int     `yaml:"blur_radius"`
	BlurSigma  float32 `yaml:"blur_sigma"`
	MipLevels  int     `yaml:"mip_levels"`
	Bias       float32 `yaml:"bias"`
	Softness   float32 `yaml:"softness"`
}

// SamplingConfig drives the entity sample loop.
type SamplingConfig struct {
	Capacity          int     `yaml:"capacity"`
	CoverageIntensity float32 `yaml:"coverage_intensity"`
	DispatchInterval  int     `yaml:"dispatch_interval"`
	FootprintCeiling  float32 `yaml:"footprint_ceiling"`
	FootprintDepth    float32 `yaml:"footprint_depth"`
}

// Default returns the configuration used when nothing is loaded.
func Default() Config {
	return Config{
		Mesh: MeshConfig{
			GridStep:     1,
			MinCellSize:  1,
			MaxDepth:     16,
			BaseCellSize: 1,
			MaxCellSize:  8,
			FalloffSpeed: 1,
			MaxDistance:  64,
		},
		Surface: SurfaceConfig{
			TargetEdgeLength:    2,
			MaxRefinePasses:     4,
			SmoothingIterations: 1,
			SmoothingFactor:     0.5,
			MirrorCollision:     true,
			OverlayLayer:        1 << 20,
			OverlayMaterial:     "coverage-overlay",
			Workers:             4,
		},
		Bake: BakeConfig{
			Resolution: 256,
			BlurRadius: 4,
			MipLevels:  4,
			Bias:       0.05,
			Softness:   0.5,
		},
		Sampling: SamplingConfig{
			Capacity:          256,
			CoverageIntensity: 1,
			DispatchInterval:  1,
			FootprintCeiling:  500,
			FootprintDepth:    1000,
		},
	}
}

// Load reads a YAML configuration on top of Default. An empty path falls back to the COVERAGE_CONFIG
// environment variable; when that is empty too the defaults are returned.
//
// Parameters:
//   - path: the YAML file path
//
// Returns:
//   - Config: the loaded configuration
//   - error: an error if the file could not be read, parsed or validated
func Load(path string) (Config, error) {
	cfg := Default()
	path = cmp.Or(path, os.Getenv(EnvConfigPath))
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.New("reading config failed").
			WithTag("path", path).
			Wrap(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.New("parsing config failed").
			WithTag("path", path).
			WithType(ErrTypeInvalid).
			Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first knob outside its usable range.
func (c Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"mesh.grid_step", c.Mesh.GridStep > 0},
		{"mesh.base_cell_size", c.Mesh.BaseCellSize >= 1},
		{"mesh.max_cell_size", c.Mesh.MaxCellSize >= c.Mesh.BaseCellSize},
		{"mesh.max_distance", c.Mesh.MaxDistance > 0},
		{"mesh.falloff_speed", c.Mesh.FalloffSpeed >= 0},
		{"surface.target_edge_length", c.Surface.TargetEdgeLength >= 0},
		{"surface.smoothing_factor", c.Surface.SmoothingFactor >= 0 && c.Surface.SmoothingFactor <= 1},
		{"bake.resolution", c.Bake.Resolution > 0},
		{"bake.blur_radius", c.Bake.BlurRadius >= 0},
		{"bake.mip_levels", c.Bake.MipLevels >= 1},
		{"sampling.capacity", c.Sampling.Capacity >= 0},
		{"sampling.dispatch_interval", c.Sampling.DispatchInterval >= 1},
		{"sampling.footprint_depth", c.Sampling.FootprintDepth > 0},
	}
	for _, check := range checks {
		if !check.ok {
			return errors.New("config value out of range").
				WithTag("key", check.name).
				WithType(ErrTypeInvalid)
		}
	}
	return nil
}
