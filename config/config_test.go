package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.IntelligenceFloor)
	assert.Equal(t, uint64(0x10000), cfg.BucketSize)
	assert.Equal(t, uint64(0x40), cfg.LinearStep)
	assert.InDelta(t, 0.50, cfg.Predictor.PatternWeight, 1e-6)
	assert.InDelta(t, 0.70, cfg.Similarity.Threshold, 1e-6)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.DiskTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoadPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spritenav.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
intelligence_floor: 5
linear_step: 0x80
similarity:
  threshold: 0.85
cache:
  disk_dir: /tmp/navcache
  disk_ttl: 1h
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.IntelligenceFloor)
	assert.Equal(t, uint64(0x80), cfg.LinearStep)
	assert.InDelta(t, 0.85, cfg.Similarity.Threshold, 1e-6)
	assert.Equal(t, "/tmp/navcache", cfg.Cache.DiskDir)
	assert.Equal(t, time.Hour, cfg.Cache.DiskTTL)

	// Unset fields keep their defaults.
	assert.Equal(t, uint64(0x10000), cfg.BucketSize)
	assert.InDelta(t, 0.25, cfg.Predictor.DensityWeight, 1e-6)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "threshold above one", yaml: "similarity:\n  threshold: 1.5\n"},
		{name: "negative weight", yaml: "predictor:\n  pattern_weight: -0.5\n"},
		{name: "alpha out of range", yaml: "predictor:\n  alpha: 2\n"},
		{name: "not yaml", yaml: "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
