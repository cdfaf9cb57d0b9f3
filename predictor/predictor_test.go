package predictor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spritenav/analyzer"
	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/regionmap"
)

const testROMSize = 0x100000

func buildMap(t *testing.T, offsets ...uint64) *regionmap.Map {
	t.Helper()
	m := regionmap.New(testROMSize)
	for _, off := range offsets {
		_, err := m.Insert(model.SpriteLocation{
			Offset:           off,
			CompressedSize:   0x40,
			DecompressedSize: 0x80,
			Confidence:       0.9,
			Region:           model.RegionSprite,
		})
		require.NoError(t, err)
	}
	return m
}

func queryFor(m *regionmap.Map, cursor uint64) Query {
	return Query{
		Cursor:   cursor,
		ROMSize:  testROMSize,
		MaxHints: 10,
		Model:    analyzer.Analyze(m.Locations(), m.BucketSize()),
		Map:      m,
	}
}

func TestPredictProjectsSpacingPattern(t *testing.T) {
	m := buildMap(t, 0x1000, 0x1040, 0x1080)
	p := New()

	hints := p.Predict(context.Background(), queryFor(m, 0x1080))
	require.NotEmpty(t, hints)

	// Three sprites 0x40 apart with the cursor on the last one: the next
	// projection forward is the top candidate.
	top := hints[0]
	assert.Equal(t, uint64(0x10C0), top.TargetOffset)
	assert.Equal(t, model.StrategyPatternBased, top.Strategy)
	assert.InDelta(t, 1.0, top.PatternStrength, 1e-6)
	assert.Greater(t, top.Confidence, float32(0.5))
}

func TestPredictExcludesConfirmed(t *testing.T) {
	m := buildMap(t, 0x1000, 0x1040, 0x1080)
	p := New()

	hints := p.Predict(context.Background(), queryFor(m, 0x1080))
	for _, h := range hints {
		assert.False(t, m.Contains(h.TargetOffset), "hint 0x%X is already confirmed", h.TargetOffset)
	}
}

func TestPredictBackwardProjection(t *testing.T) {
	m := buildMap(t, 0x1000, 0x1040, 0x1080)
	p := New()

	hints := p.Predict(context.Background(), queryFor(m, 0x1080))

	var offsets []uint64
	for _, h := range hints {
		offsets = append(offsets, h.TargetOffset)
	}
	assert.Contains(t, offsets, uint64(0xFC0))
}

func TestPredictEmptyWithoutPattern(t *testing.T) {
	p := New()

	assert.Nil(t, p.Predict(context.Background(), Query{}))

	// A single location has no deltas to project from.
	m := buildMap(t, 0x1000)
	assert.Nil(t, p.Predict(context.Background(), queryFor(m, 0x1000)))
}

func TestPredictIgnoresWeakDistances(t *testing.T) {
	// One dominant 0x40 spacing plus unique wide gaps: only the dominant
	// distance clears the strength floor, so every hint carries it.
	m := buildMap(t, 0x1000, 0x1040, 0x1080, 0x10C0, 0x5000, 0x9300)
	p := New()

	hints := p.Predict(context.Background(), queryFor(m, 0x10C0))
	require.NotEmpty(t, hints)
	for _, h := range hints {
		assert.InDelta(t, 3.0/5.0, h.PatternStrength, 1e-6)
	}
}

func TestWeightsNormalized(t *testing.T) {
	p := New()

	w := p.Weights()
	assert.InDelta(t, 1.0, w.Pattern+w.Density+w.Similarity, 1e-5)
	assert.Greater(t, w.Pattern, w.Density)
}

func TestRecordOutcomeShiftsWeights(t *testing.T) {
	p := New()
	before := p.Weights()

	patternHint := model.NavigationHint{
		TargetOffset:    0x10C0,
		Strategy:        model.StrategyPatternBased,
		PatternStrength: 1.0,
	}
	for i := 0; i < 20; i++ {
		p.RecordOutcome(patternHint, false)
	}

	after := p.Weights()
	assert.Less(t, after.Pattern, before.Pattern)
	assert.InDelta(t, 1.0, after.Pattern+after.Density+after.Similarity, 1e-5)
}

func TestWeightsStayBounded(t *testing.T) {
	p := New()

	hint := model.NavigationHint{
		PatternStrength: 1.0,
		SimilarityScore: 0.9,
		ExpectedRegion:  model.RegionHighDensity,
	}
	for i := 0; i < 1000; i++ {
		p.RecordOutcome(hint, false)
	}
	w := p.Weights()
	for _, v := range []float32{w.Pattern, w.Density, w.Similarity} {
		assert.Greater(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
	assert.InDelta(t, 1.0, w.Pattern+w.Density+w.Similarity, 1e-5)
}
