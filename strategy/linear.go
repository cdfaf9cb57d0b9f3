package strategy

import (
	"context"
	"fmt"

	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/regionmap"
)

// DefaultLinearStep is the base scan step when no local density
// information is available.
const DefaultLinearStep = 0x40

// Linear steps forward from the cursor at a density-adapted stride. It is
// the floor every other strategy degrades to, and the engine's fallback
// when a strategy fails.
type Linear struct{}

// NewLinear creates the linear strategy.
func NewLinear() *Linear { return &Linear{} }

func (*Linear) Name() string { return "linear" }

func (*Linear) Kind() model.StrategyKind { return model.StrategyLinear }

// FindNext generates fixed-step candidates ahead of the cursor.
func (s *Linear) FindNext(ctx context.Context, q Query) ([]model.NavigationHint, error) {
	return GenerateLinear(ctx, q), nil
}

// GenerateLinear is the shared linear-scan hint generator. Exported within
// the package tree so degraded strategies and the engine fallback produce
// identical hints for identical queries.
func GenerateLinear(ctx context.Context, q Query) []model.NavigationHint {
	step := adaptiveStep(q)

	limit := q.MaxHints()
	hints := make([]model.NavigationHint, 0, limit)
	offset := q.Context.Cursor
	for i := 0; len(hints) < limit && i < limit*4; i++ {
		if ctx.Err() != nil {
			break
		}
		offset += step
		if q.ROMSize > 0 && offset >= q.ROMSize {
			break
		}
		if q.Map != nil && q.Map.Contains(offset) {
			continue
		}

		hints = append(hints, model.NavigationHint{
			TargetOffset:   offset,
			Confidence:     linearConfidence(offset, q),
			Reasoning:      fmt.Sprintf("linear scan, step 0x%X", step),
			Strategy:       model.StrategyLinear,
			ExpectedRegion: nearbyRegion(offset, q.Map),
			Priority:       0.4,
		})
	}
	return hints
}

// adaptiveStep shrinks the stride in dense areas and widens it in sparse
// ones, based on the spacing of the nearest confirmed locations.
func adaptiveStep(q Query) uint64 {
	step := q.LinearStep
	if step == 0 {
		step = DefaultLinearStep
	}
	if q.Map == nil {
		return step
	}

	neighbors := q.Map.Nearest(q.Context.Cursor, 5)
	if len(neighbors) < 2 {
		return step
	}

	var sum uint64
	n := 0
	for _, nb := range neighbors {
		if nb.Distance > 0x1000 {
			continue
		}
		sum += nb.Distance
		n++
	}
	if n < 2 {
		return step
	}

	switch avg := sum / uint64(n); {
	case avg < 0x20:
		return 0x10
	case avg < 0x100:
		return DefaultLinearStep
	default:
		return 0x80
	}
}

func linearConfidence(offset uint64, q Query) float32 {
	conf := float32(0.5)

	if q.Map != nil {
		for _, gap := range q.Map.Gaps(0x100) {
			if offset >= gap.Start && offset < gap.End {
				conf += 0.2 // unexplored space between confirmed sprites
				break
			}
		}
	}

	var d uint64
	if offset > q.Context.Cursor {
		d = offset - q.Context.Cursor
	} else {
		d = q.Context.Cursor - offset
	}
	if d < 0x20 {
		conf -= 0.3
	}

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// nearbyRegion predicts the region type from the closest confirmed
// locations.
func nearbyRegion(offset uint64, m *regionmap.Map) model.RegionType {
	if m == nil {
		return model.RegionUnknown
	}
	neighbors := m.Nearest(offset, 3)
	if len(neighbors) == 0 {
		return model.RegionUnknown
	}

	counts := make(map[model.RegionType]int)
	best := model.RegionUnknown
	for _, nb := range neighbors {
		if nb.Distance > 0x1000 {
			continue
		}
		r := nb.Location.Region
		counts[r]++
		if counts[r] > counts[best] || best == model.RegionUnknown {
			best = r
		}
	}
	return best
}
