package strategy

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spritenav/analyzer"
	"github.com/hupe1980/spritenav/fingerprint"
	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/predictor"
	"github.com/hupe1980/spritenav/regionmap"
	"github.com/hupe1980/spritenav/similarity"
)

const testROMSize = 0x100000

func buildQuery(t *testing.T, cursor uint64, offsets ...uint64) Query {
	t.Helper()

	m := regionmap.New(testROMSize)
	sim := similarity.New()
	data := bytes.Repeat([]byte{0xAB, 0xCD}, 32)
	for _, off := range offsets {
		loc := model.SpriteLocation{
			Offset:           off,
			CompressedSize:   0x40,
			DecompressedSize: 0x80,
			Confidence:       0.9,
			Region:           model.RegionSprite,
			Fingerprint:      fingerprint.New(data),
		}
		_, err := m.Insert(loc)
		require.NoError(t, err)
		sim.Add(loc)
	}

	return Query{
		Context: model.NavigationContext{Cursor: cursor, MaxHints: 10},
		ROMSize: testROMSize,
		Map:     m,
		Model:   analyzer.Analyze(m.Locations(), m.BucketSize()),
		Sim:     sim,
		Pred:    predictor.New(),
		Floor:   3,
	}
}

func TestLinearGeneratesForwardSteps(t *testing.T) {
	q := buildQuery(t, 0x1000)

	hints, err := NewLinear().FindNext(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, hints)

	for _, h := range hints {
		assert.Greater(t, h.TargetOffset, uint64(0x1000))
		assert.Equal(t, model.StrategyLinear, h.Strategy)
	}
}

func TestLinearSkipsConfirmed(t *testing.T) {
	q := buildQuery(t, 0x1000, 0x1040, 0x1080)
	q.LinearStep = 0x40

	hints, err := NewLinear().FindNext(context.Background(), q)
	require.NoError(t, err)
	for _, h := range hints {
		assert.False(t, q.Map.Contains(h.TargetOffset))
	}
}

func TestLinearStopsAtROMEnd(t *testing.T) {
	q := buildQuery(t, testROMSize-0x80)
	q.LinearStep = 0x40

	hints, err := NewLinear().FindNext(context.Background(), q)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hints), 1)
	for _, h := range hints {
		assert.Less(t, h.TargetOffset, uint64(testROMSize))
	}
}

func TestPatternDegradesBelowFloor(t *testing.T) {
	// Two confirmed locations, floor three: no inference allowed.
	q := buildQuery(t, 0x1040, 0x1000, 0x1040)

	hints, err := NewPatternBased().FindNext(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, hints)
	for _, h := range hints {
		assert.Equal(t, model.StrategyLinear, h.Strategy)
	}
}

func TestPatternProjectsAboveFloor(t *testing.T) {
	q := buildQuery(t, 0x1080, 0x1000, 0x1040, 0x1080)

	hints, err := NewPatternBased().FindNext(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, hints)
	assert.Equal(t, uint64(0x10C0), hints[0].TargetOffset)
	assert.Equal(t, model.StrategyPatternBased, hints[0].Strategy)
}

func TestSimilarityDegradesBelowFloor(t *testing.T) {
	q := buildQuery(t, 0x1000, 0x1000)

	hints, err := NewSimilarityBased().FindNext(context.Background(), q)
	require.NoError(t, err)
	for _, h := range hints {
		assert.Equal(t, model.StrategyLinear, h.Strategy)
	}
}

func TestSimilarityHintsPastMatches(t *testing.T) {
	// Identical sprites near the cursor and far away: the strategy probes
	// the space right after the far matches.
	q := buildQuery(t, 0x1000, 0x1000, 0x1040, 0x8000, 0x8040)

	hints, err := NewSimilarityBased().FindNext(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, hints)

	found := false
	for _, h := range hints {
		if h.Strategy == model.StrategySimilarityBased {
			found = true
			assert.Greater(t, h.SimilarityScore, float32(0))
			assert.False(t, q.Map.Contains(h.TargetOffset))
		}
	}
	assert.True(t, found)
}

func TestHybridMergesAndDedupes(t *testing.T) {
	q := buildQuery(t, 0x1080, 0x1000, 0x1040, 0x1080)

	hints, err := NewHybrid().FindNext(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, hints)
	assert.LessOrEqual(t, len(hints), q.MaxHints())

	// No two hints within the dedupe epsilon of each other.
	for i, a := range hints {
		for _, b := range hints[i+1:] {
			var d uint64
			if a.TargetOffset > b.TargetOffset {
				d = a.TargetOffset - b.TargetOffset
			} else {
				d = b.TargetOffset - a.TargetOffset
			}
			assert.Greater(t, d, uint64(0x10))
		}
	}
}

func TestHybridDegradesBelowFloor(t *testing.T) {
	q := buildQuery(t, 0x1000, 0x1000)

	hints, err := NewHybrid().FindNext(context.Background(), q)
	require.NoError(t, err)
	for _, h := range hints {
		assert.Equal(t, model.StrategyLinear, h.Strategy)
	}
}

func TestDedupeKeepsHigherScore(t *testing.T) {
	hints := []model.NavigationHint{
		{TargetOffset: 0x1000, Confidence: 0.5, Priority: 1},
		{TargetOffset: 0x1008, Confidence: 0.9, Priority: 1},
		{TargetOffset: 0x2000, Confidence: 0.4, Priority: 1},
	}

	got := Dedupe(hints, 0x10)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0x1008), got[0].TargetOffset)
	assert.Equal(t, uint64(0x2000), got[1].TargetOffset)
}

func TestRegistryResolveAndDisable(t *testing.T) {
	r := NewRegistry()
	r.Register("linear", func() (Strategy, error) { return NewLinear(), nil })

	s, err := r.Resolve("linear")
	require.NoError(t, err)
	assert.Equal(t, "linear", s.Name())

	_, err = r.Resolve("nope")
	assert.ErrorIs(t, err, ErrNotRegistered)

	r.Disable("linear")
	_, err = r.Resolve("linear")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.True(t, r.Disabled("linear"))

	// Re-registering clears the isolation.
	r.Register("linear", func() (Strategy, error) { return NewLinear(), nil })
	_, err = r.Resolve("linear")
	assert.NoError(t, err)
}

func TestRegistryFactoryFailureDisables(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", func() (Strategy, error) { return nil, errors.New("missing shared object") })

	_, err := r.Resolve("broken")
	require.Error(t, err)

	_, err = r.Resolve("broken")
	assert.ErrorIs(t, err, ErrDisabled)
}
