package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spritenav/model"
)

func locs(offsets []uint64, size uint32) []model.SpriteLocation {
	out := make([]model.SpriteLocation, len(offsets))
	for i, off := range offsets {
		out[i] = model.SpriteLocation{
			Offset:           off,
			CompressedSize:   size,
			DecompressedSize: size * 2,
			Confidence:       0.8,
		}
	}
	return out
}

func TestAnalyzeSpacingUniform(t *testing.T) {
	s := AnalyzeSpacing(locs([]uint64{0x1000, 0x1040, 0x1080, 0x10C0}, 0x40))

	require.NotEmpty(t, s.CommonDistances)
	assert.Equal(t, uint64(0x40), s.CommonDistances[0].Distance)
	assert.Equal(t, 3, s.CommonDistances[0].Count)
	assert.Equal(t, 3, s.TotalDeltas)
	assert.InDelta(t, 1.0, s.Confidence, 1e-6)
	assert.InDelta(t, 64.0, s.Mean, 1e-6)
}

func TestAnalyzeSpacingMixed(t *testing.T) {
	// Two 0x40 gaps, one 0x200 gap and one 0x1000 gap.
	s := AnalyzeSpacing(locs([]uint64{0x1000, 0x1040, 0x1080, 0x1280, 0x2280}, 0x40))

	assert.Equal(t, uint64(0x40), s.CommonDistances[0].Distance)
	assert.InDelta(t, 0.5, s.Confidence, 1e-6)
	assert.Equal(t, 4, s.TotalDeltas)
}

func TestAnalyzeSpacingRoundsToAlignment(t *testing.T) {
	// 0x3E and 0x42 both round to 0x40, forming one dominant bucket.
	s := AnalyzeSpacing(locs([]uint64{0x1000, 0x103E, 0x1080}, 0x20))

	assert.Equal(t, uint64(0x40), s.CommonDistances[0].Distance)
	assert.Equal(t, 2, s.CommonDistances[0].Count)
}

func TestAnalyzeSpacingTooFew(t *testing.T) {
	assert.Zero(t, AnalyzeSpacing(nil).TotalDeltas)
	assert.Zero(t, AnalyzeSpacing(locs([]uint64{0x1000}, 0x40)).TotalDeltas)
}

func TestAnalyzeSizes(t *testing.T) {
	in := []model.SpriteLocation{
		{Offset: 0x1000, CompressedSize: 0x40, DecompressedSize: 0x80, Confidence: 0.8},
		{Offset: 0x2000, CompressedSize: 0x40, DecompressedSize: 0x80, Confidence: 0.8},
		{Offset: 0x3000, CompressedSize: 0x40, DecompressedSize: 0xC0, Confidence: 0.8},
		{Offset: 0x4000, CompressedSize: 0x100, DecompressedSize: 0x200, Confidence: 0.8},
	}
	s := AnalyzeSizes(in)

	require.NotEmpty(t, s.CommonSizes)
	assert.Equal(t, uint32(0x40), s.CommonSizes[0].Size)
	assert.Equal(t, 3, s.CommonSizes[0].Count)
	assert.InDelta(t, 0.75, s.Confidence, 1e-6)
	assert.InDelta(t, 2.0, s.Compression.Median, 1e-6)
	assert.Equal(t, 4, s.Small.Count+s.Medium.Count+s.Large.Count)
}

func TestAnalyzeDensity(t *testing.T) {
	in := locs([]uint64{0x100, 0x200, 0x300, 0x10100, 0x20100}, 0x40)
	d := AnalyzeDensity(in, 0x10000, 2)

	assert.Equal(t, 3, d.Buckets[0])
	assert.Equal(t, 1, d.Buckets[1])
	assert.Equal(t, 3, d.MaxCount)
	require.Len(t, d.HighDensity, 2)
	assert.Equal(t, uint32(0), d.HighDensity[0])

	assert.InDelta(t, 1.0, d.DensityAt(0x500), 1e-6)
	assert.InDelta(t, 1.0/3.0, d.DensityAt(0x15000), 1e-6)
	assert.Zero(t, d.DensityAt(0x90000))
}

func TestAnalyzeCombined(t *testing.T) {
	m := Analyze(locs([]uint64{0x1000, 0x1040, 0x1080}, 0x40), 0x10000)

	assert.Equal(t, 2, m.Spacing.TotalDeltas)
	assert.Equal(t, 3, m.Density.MaxCount)
	assert.NotEmpty(t, m.Sizes.CommonSizes)
}
