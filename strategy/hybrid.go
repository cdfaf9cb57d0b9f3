package strategy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/spritenav/model"
)

// hybridEpsilon is the offset distance within which two hints count as
// duplicates of the same candidate.
const hybridEpsilon = 0x10

// Hybrid fans out to the pattern and similarity strategies concurrently,
// merges their hints, and drops near-duplicate offsets keeping the
// higher-scored one.
type Hybrid struct {
	pattern    *PatternBased
	similarity *SimilarityBased
}

// NewHybrid creates the hybrid strategy.
func NewHybrid() *Hybrid {
	return &Hybrid{
		pattern:    NewPatternBased(),
		similarity: NewSimilarityBased(),
	}
}

func (*Hybrid) Name() string { return "hybrid" }

func (*Hybrid) Kind() model.StrategyKind { return model.StrategyHybrid }

// FindNext merges pattern and similarity results. Hints keep the kind of
// the strategy that produced them so callers can see the winning signal.
func (s *Hybrid) FindNext(ctx context.Context, q Query) ([]model.NavigationHint, error) {
	if belowFloor(q) {
		return GenerateLinear(ctx, q), nil
	}

	var patternHints, simHints []model.NavigationHint

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patternHints, err = s.pattern.FindNext(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		simHints, err = s.similarity.FindNext(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := append(patternHints, simHints...)
	merged = dedupeNear(merged, hybridEpsilon)

	if len(merged) > q.MaxHints() {
		merged = merged[:q.MaxHints()]
	}
	return merged, nil
}
