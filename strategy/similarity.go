package strategy

import (
	"context"
	"fmt"

	"github.com/hupe1980/spritenav/model"
)

// DefaultWindow is the cursor-local byte range the similarity strategy
// takes its reference sprites from.
const DefaultWindow = 0x10000

const maxReferences = 5

// SimilarityBased finds confirmed sprites near the cursor, looks up their
// most similar counterparts elsewhere in the ROM, and hints at the space
// right after those counterparts, since related sprites cluster together.
type SimilarityBased struct{}

// NewSimilarityBased creates the similarity strategy.
func NewSimilarityBased() *SimilarityBased { return &SimilarityBased{} }

func (*SimilarityBased) Name() string { return "similarity" }

func (*SimilarityBased) Kind() model.StrategyKind { return model.StrategySimilarityBased }

// FindNext returns similarity-derived hints. Cancellation is checked
// between reference sprites; partial results are returned, never an error.
func (s *SimilarityBased) FindNext(ctx context.Context, q Query) ([]model.NavigationHint, error) {
	if belowFloor(q) || q.Sim == nil || q.Sim.Len() < 2 {
		return GenerateLinear(ctx, q), nil
	}

	window := q.Context.Window
	if window == 0 {
		window = DefaultWindow
	}

	var start uint64
	if q.Context.Cursor > window {
		start = q.Context.Cursor - window
	}
	refs := q.Map.RangeQuery(start, q.Context.Cursor+window)
	if len(refs) > maxReferences {
		refs = refs[:maxReferences]
	}

	seen := make(map[uint64]bool)
	var hints []model.NavigationHint
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if ref.Fingerprint.IsZero() {
			continue
		}

		for _, match := range q.Sim.Nearest(ctx, ref, q.MaxHints()) {
			cand := alignUp(match.Location.EndOffset(), 0x10)
			if cand >= q.ROMSize || seen[cand] || q.Map.Contains(cand) {
				continue
			}
			seen[cand] = true

			hints = append(hints, model.NavigationHint{
				TargetOffset:    cand,
				Confidence:      match.Score * 0.8,
				Reasoning:       fmt.Sprintf("similar to 0x%X (score %.2f), probing past its match at 0x%X", ref.Offset, match.Score, match.Location.Offset),
				Strategy:        model.StrategySimilarityBased,
				ExpectedRegion:  match.Location.Region,
				EstimatedSize:   match.Location.CompressedSize,
				SimilarityScore: match.Score,
				Priority:        0.6,
				DistancePenalty: cursorPenalty(q.Context.Cursor, cand, q.ROMSize),
			})
		}
	}

	model.SortHints(hints)
	if len(hints) > q.MaxHints() {
		hints = hints[:q.MaxHints()]
	}
	if len(hints) == 0 {
		return GenerateLinear(ctx, q), nil
	}
	return hints, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

func cursorPenalty(cursor, cand, romSize uint64) float32 {
	if romSize == 0 {
		return 0
	}
	var d uint64
	if cand > cursor {
		d = cand - cursor
	} else {
		d = cursor - cand
	}
	pen := float32(d) / float32(romSize) * 0.2
	if pen > 0.2 {
		pen = 0.2
	}
	return pen
}
