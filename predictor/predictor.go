// Package predictor combines pattern and similarity signals into ranked
// candidate offsets. Signal weights adapt from confirmed/rejected hint
// outcomes through a bounded exponential moving average.
package predictor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/spritenav/analyzer"
	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/regionmap"
	"github.com/hupe1980/spritenav/similarity"
)

// Signal identifies one of the prediction inputs.
type Signal int

const (
	SignalPattern Signal = iota
	SignalDensity
	SignalSimilarity
	numSignals
)

func (s Signal) String() string {
	switch s {
	case SignalPattern:
		return "pattern"
	case SignalDensity:
		return "density"
	case SignalSimilarity:
		return "similarity"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Weights are the per-signal base weights. They are configuration; the
// adaptive layer scales them by observed success, never replaces them.
type Weights struct {
	Pattern    float32 `yaml:"pattern" json:"pattern"`
	Density    float32 `yaml:"density" json:"density"`
	Similarity float32 `yaml:"similarity" json:"similarity"`
}

// DefaultWeights favor spacing patterns, the strongest signal in practice.
var DefaultWeights = Weights{Pattern: 0.50, Density: 0.25, Similarity: 0.25}

const (
	// weight clamp bounds; adaptation can never silence or saturate a signal
	minWeight = 0.05
	maxWeight = 0.90

	// defaultAlpha is the EMA learning rate per outcome.
	defaultAlpha = 0.1

	// confidenceFloor is the minimum spacing-bucket share a distance needs
	// before the predictor projects it.
	confidenceFloor = 0.25

	// maxBases bounds how many recent confirmed locations are projected from.
	maxBases = 3

	// maxDistances bounds how many spacing distances are projected.
	maxDistances = 5
)

// Query carries everything a prediction needs. Map and Sim are the live
// engine structures; Model is a derived view that may lag the map by at
// most one insert batch.
type Query struct {
	Cursor   uint64
	ROMSize  uint64
	MaxHints int
	Model    *analyzer.Model
	Map      *regionmap.Map
	Sim      *similarity.Index
	// Window is the byte range around a candidate inside which a similar
	// confirmed neighbor counts as a similarity signal.
	Window uint64
}

// Predictor produces ranked offset candidates with adaptive signal
// weighting. Safe for concurrent use.
type Predictor struct {
	mu      sync.Mutex
	base    Weights
	ema     [numSignals]float32
	alpha   float32
	updates uint64
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithWeights overrides the base weights.
func WithWeights(w Weights) Option {
	return func(p *Predictor) {
		if w.Pattern+w.Density+w.Similarity > 0 {
			p.base = w
		}
	}
}

// WithAlpha overrides the EMA learning rate (clamped to (0, 0.5]).
func WithAlpha(alpha float32) Option {
	return func(p *Predictor) {
		if alpha > 0 && alpha <= 0.5 {
			p.alpha = alpha
		}
	}
}

// New creates a Predictor with neutral success history (EMA 0.5 each).
func New(opts ...Option) *Predictor {
	p := &Predictor{
		base:  DefaultWeights,
		alpha: defaultAlpha,
	}
	for i := range p.ema {
		p.ema[i] = 0.5
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Weights returns the current effective weights: base weights scaled by
// the success EMA, clamped to [0.05, 0.90] and normalized to sum 1.
func (p *Predictor) Weights() Weights {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effectiveLocked()
}

func (p *Predictor) effectiveLocked() Weights {
	raw := [numSignals]float32{
		clampWeight(p.base.Pattern * (0.5 + p.ema[SignalPattern])),
		clampWeight(p.base.Density * (0.5 + p.ema[SignalDensity])),
		clampWeight(p.base.Similarity * (0.5 + p.ema[SignalSimilarity])),
	}
	sum := raw[0] + raw[1] + raw[2]
	return Weights{
		Pattern:    raw[0] / sum,
		Density:    raw[1] / sum,
		Similarity: raw[2] / sum,
	}
}

func clampWeight(w float32) float32 {
	if w < minWeight {
		return minWeight
	}
	if w > maxWeight {
		return maxWeight
	}
	return w
}

// RecordOutcome shifts the weighting toward the signals that contributed
// to a confirmed hint and away from those behind a rejected one. Only
// signals that actually contributed to the hint are updated.
func (p *Predictor) RecordOutcome(hint model.NavigationHint, success bool) {
	target := float32(0)
	if success {
		target = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if hint.PatternStrength > 0 {
		p.ema[SignalPattern] += p.alpha * (target - p.ema[SignalPattern])
	}
	if hint.SimilarityScore > 0 {
		p.ema[SignalSimilarity] += p.alpha * (target - p.ema[SignalSimilarity])
	}
	if hint.ExpectedRegion == model.RegionHighDensity {
		p.ema[SignalDensity] += p.alpha * (target - p.ema[SignalDensity])
	}
	p.updates++
}

// Predict projects each strong spacing distance forward and backward from
// the confirmed locations nearest the cursor, scores the resulting
// candidates with the combined weighted signals, and returns them ranked.
// Candidates already confirmed in the map are excluded.
func (p *Predictor) Predict(ctx context.Context, q Query) []model.NavigationHint {
	if q.Model == nil || q.Map == nil || q.Map.Len() == 0 {
		return nil
	}

	w := p.Weights()

	distances := strongDistances(q.Model.Spacing)
	if len(distances) == 0 {
		return nil
	}

	bases := q.Map.Nearest(q.Cursor, maxBases)

	seen := make(map[uint64]bool)
	var hints []model.NavigationHint
	for _, dc := range distances {
		if ctx.Err() != nil {
			break
		}
		strength := float32(dc.Count) / float32(q.Model.Spacing.TotalDeltas)

		for _, base := range bases {
			cands := make([]uint64, 0, 2)
			cands = append(cands, base.Location.Offset+dc.Distance)
			if base.Location.Offset >= dc.Distance {
				cands = append(cands, base.Location.Offset-dc.Distance)
			}
			for _, cand := range cands {
				if cand >= q.ROMSize || seen[cand] || q.Map.Contains(cand) {
					continue
				}
				seen[cand] = true

				hints = append(hints, p.scoreCandidate(ctx, q, w, cand, dc, strength))
			}
		}
	}

	model.SortHints(hints)
	if q.MaxHints > 0 && len(hints) > q.MaxHints {
		hints = hints[:q.MaxHints]
	}
	return hints
}

func (p *Predictor) scoreCandidate(ctx context.Context, q Query, w Weights, cand uint64, dc analyzer.DistanceCount, strength float32) model.NavigationHint {
	density := q.Model.Density.DensityAt(cand)

	simScore := p.similarityNear(ctx, q, cand)

	conf := clamp01(w.Pattern*strength + w.Density*density + w.Similarity*simScore)

	expected := model.RegionUnknown
	if density >= 0.5 {
		expected = model.RegionHighDensity
	}

	var estimated uint32
	if len(q.Model.Sizes.CommonSizes) > 0 {
		estimated = q.Model.Sizes.CommonSizes[0].Size
	}

	return model.NavigationHint{
		TargetOffset:    cand,
		Confidence:      conf,
		Reasoning:       fmt.Sprintf("spacing 0x%X (seen %dx), density %.2f", dc.Distance, dc.Count, density),
		Strategy:        model.StrategyPatternBased,
		ExpectedRegion:  expected,
		EstimatedSize:   estimated,
		SimilarityScore: simScore,
		PatternStrength: strength,
		Priority:        0.7,
		DistancePenalty: distancePenalty(q.Cursor, cand, q.ROMSize),
	}
}

// similarityNear returns the best similarity score between the confirmed
// neighbor closest to cand and the rest of the index, or 0 when no
// neighbor with a fingerprint sits inside the window.
func (p *Predictor) similarityNear(ctx context.Context, q Query, cand uint64) float32 {
	if q.Sim == nil || q.Sim.Len() < 2 || q.Window == 0 {
		return 0
	}

	neighbors := q.Map.Nearest(cand, 1)
	if len(neighbors) == 0 || neighbors[0].Distance > q.Window {
		return 0
	}
	ref := neighbors[0].Location
	if ref.Fingerprint.IsZero() {
		return 0
	}

	matches := q.Sim.Nearest(ctx, ref, 1)
	if len(matches) == 0 {
		return 0
	}
	return matches[0].Score
}

func strongDistances(s analyzer.SpacingStats) []analyzer.DistanceCount {
	if s.TotalDeltas == 0 {
		return nil
	}
	var out []analyzer.DistanceCount
	for _, dc := range s.CommonDistances {
		if float32(dc.Count)/float32(s.TotalDeltas) >= confidenceFloor {
			out = append(out, dc)
		}
		if len(out) == maxDistances {
			break
		}
	}
	return out
}

// distancePenalty grows with the candidate's distance from the cursor,
// bounded so score stays within [0, confidence*priority].
func distancePenalty(cursor, cand, romSize uint64) float32 {
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

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
