package strategy

import (
	"context"

	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/predictor"
)

// PatternBased projects learned spacing distances through the offset
// predictor. Below the intelligence floor it degrades to linear stepping.
type PatternBased struct{}

// NewPatternBased creates the pattern strategy.
func NewPatternBased() *PatternBased { return &PatternBased{} }

func (*PatternBased) Name() string { return "pattern" }

func (*PatternBased) Kind() model.StrategyKind { return model.StrategyPatternBased }

// FindNext delegates to the predictor over the current pattern model.
func (s *PatternBased) FindNext(ctx context.Context, q Query) ([]model.NavigationHint, error) {
	if belowFloor(q) {
		return GenerateLinear(ctx, q), nil
	}

	hints := q.Pred.Predict(ctx, predictor.Query{
		Cursor:   q.Context.Cursor,
		ROMSize:  q.ROMSize,
		MaxHints: q.MaxHints(),
		Model:    q.Model,
		Map:      q.Map,
		Sim:      q.Sim,
		Window:   q.Context.Window,
	})
	if len(hints) == 0 {
		// Patterns exist but projected nothing new (all candidates
		// confirmed or out of bounds). Fall back rather than stall.
		return GenerateLinear(ctx, q), nil
	}
	return hints, nil
}
