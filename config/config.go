// Package config holds the tunable parameters of the navigation engine
// and loads them from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config collects all engine tunables. Zero values mean "use default";
// Normalize fills them in.
type Config struct {
	// IntelligenceFloor is the minimum number of confirmed locations
	// before learned strategies activate. Below it every strategy
	// degrades to linear scanning.
	IntelligenceFloor int `yaml:"intelligence_floor"`

	// BucketSize is the region-map density bucket width in bytes.
	BucketSize uint64 `yaml:"bucket_size"`

	// LinearStep is the base step of the linear strategy in bytes.
	LinearStep uint64 `yaml:"linear_step"`

	Predictor  Predictor  `yaml:"predictor"`
	Similarity Similarity `yaml:"similarity"`
	Cache      Cache      `yaml:"cache"`
	Resources  Resources  `yaml:"resources"`
}

// Predictor tunes the offset predictor.
type Predictor struct {
	// Base weights for the pattern, density and similarity signals.
	// Normalized on use.
	PatternWeight    float32 `yaml:"pattern_weight"`
	DensityWeight    float32 `yaml:"density_weight"`
	SimilarityWeight float32 `yaml:"similarity_weight"`

	// Alpha is the smoothing factor of the per-signal outcome average.
	Alpha float32 `yaml:"alpha"`
}

// Similarity tunes the similarity index.
type Similarity struct {
	SizeWeight       float32 `yaml:"size_weight"`
	StructuralWeight float32 `yaml:"structural_weight"`
	RatioWeight      float32 `yaml:"ratio_weight"`
	ComplexityWeight float32 `yaml:"complexity_weight"`

	// Threshold is the minimum similarity score for a match.
	Threshold float32 `yaml:"threshold"`
	// MinResults triggers a single bounded threshold relaxation when a
	// search returns fewer matches.
	MinResults int `yaml:"min_results"`
	// RelaxFactor scales the threshold for that relaxation.
	RelaxFactor float32 `yaml:"relax_factor"`
}

// Cache tunes the two-level result cache.
type Cache struct {
	// MemoryMaxEntries bounds the in-memory tier by entry count.
	MemoryMaxEntries int `yaml:"memory_max_entries"`
	// MemoryMaxBytes bounds the in-memory tier by aggregate value size.
	MemoryMaxBytes int64 `yaml:"memory_max_bytes"`

	// DiskDir enables the persistent tier when non-empty.
	DiskDir string `yaml:"disk_dir"`
	// DiskMaxBytes bounds the persistent tier.
	DiskMaxBytes int64 `yaml:"disk_max_bytes"`
	// DiskTTL expires persistent entries by age.
	DiskTTL time.Duration `yaml:"disk_ttl"`
}

// Resources bounds background work.
type Resources struct {
	MaxBackgroundWorkers int64 `yaml:"max_background_workers"`
	IOLimitBytesPerSec   int64 `yaml:"io_limit_bytes_per_sec"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{}
	cfg.Normalize()
	return cfg
}

// Load reads a YAML config file. Missing fields keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.IntelligenceFloor <= 0 {
		c.IntelligenceFloor = 3
	}
	if c.BucketSize == 0 {
		c.BucketSize = 0x10000
	}
	if c.LinearStep == 0 {
		c.LinearStep = 0x40
	}

	if c.Predictor.PatternWeight == 0 {
		c.Predictor.PatternWeight = 0.50
	}
	if c.Predictor.DensityWeight == 0 {
		c.Predictor.DensityWeight = 0.25
	}
	if c.Predictor.SimilarityWeight == 0 {
		c.Predictor.SimilarityWeight = 0.25
	}
	if c.Predictor.Alpha == 0 {
		c.Predictor.Alpha = 0.1
	}

	if c.Similarity.SizeWeight == 0 {
		c.Similarity.SizeWeight = 0.25
	}
	if c.Similarity.StructuralWeight == 0 {
		c.Similarity.StructuralWeight = 0.50
	}
	if c.Similarity.RatioWeight == 0 {
		c.Similarity.RatioWeight = 0.15
	}
	if c.Similarity.ComplexityWeight == 0 {
		c.Similarity.ComplexityWeight = 0.10
	}
	if c.Similarity.Threshold == 0 {
		c.Similarity.Threshold = 0.70
	}
	if c.Similarity.MinResults == 0 {
		c.Similarity.MinResults = 2
	}
	if c.Similarity.RelaxFactor == 0 {
		c.Similarity.RelaxFactor = 0.8
	}

	if c.Cache.MemoryMaxEntries == 0 {
		c.Cache.MemoryMaxEntries = 1024
	}
	if c.Cache.MemoryMaxBytes == 0 {
		c.Cache.MemoryMaxBytes = 32 << 20
	}
	if c.Cache.DiskMaxBytes == 0 {
		c.Cache.DiskMaxBytes = 256 << 20
	}
	if c.Cache.DiskTTL == 0 {
		c.Cache.DiskTTL = 7 * 24 * time.Hour
	}

	if c.Resources.MaxBackgroundWorkers == 0 {
		c.Resources.MaxBackgroundWorkers = 2
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Similarity.Threshold < 0 || c.Similarity.Threshold > 1 {
		return fmt.Errorf("config: similarity threshold %v out of [0,1]", c.Similarity.Threshold)
	}
	if c.Similarity.RelaxFactor <= 0 || c.Similarity.RelaxFactor > 1 {
		return fmt.Errorf("config: relax factor %v out of (0,1]", c.Similarity.RelaxFactor)
	}
	if c.Predictor.Alpha <= 0 || c.Predictor.Alpha >= 1 {
		return fmt.Errorf("config: predictor alpha %v out of (0,1)", c.Predictor.Alpha)
	}
	for _, w := range []float32{
		c.Predictor.PatternWeight, c.Predictor.DensityWeight, c.Predictor.SimilarityWeight,
		c.Similarity.SizeWeight, c.Similarity.StructuralWeight, c.Similarity.RatioWeight, c.Similarity.ComplexityWeight,
	} {
		if w < 0 {
			return fmt.Errorf("config: negative weight %v", w)
		}
	}
	return nil
}
