// Package similarity maintains content fingerprints of confirmed sprite
// locations and answers approximate nearest-neighbor queries over them.
//
// The index never owns location lifetime; the region map does. On
// invalidation the engine rebuilds the index from a fresh map snapshot.
package similarity

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/spritenav/fingerprint"
	"github.com/hupe1980/spritenav/model"
)

// Weights control the multi-factor distance. They are configuration, not
// hardcoded; zero-value weights fall back to Default.
type Weights struct {
	Size       float32 `yaml:"size" json:"size"`
	Structural float32 `yaml:"structural" json:"structural"`
	Ratio      float32 `yaml:"ratio" json:"ratio"`
	Complexity float32 `yaml:"complexity" json:"complexity"`
}

// Default mirrors the weighting the interactive tool ships with: content
// fingerprints dominate, size and compression shape refine.
var Default = Weights{
	Size:       0.25,
	Structural: 0.50,
	Ratio:      0.15,
	Complexity: 0.10,
}

func (w Weights) isZero() bool {
	return w == Weights{}
}

func (w Weights) sum() float32 {
	return w.Size + w.Structural + w.Ratio + w.Complexity
}

// Match pairs a location with its similarity score in [0,1].
type Match struct {
	Location model.SpriteLocation
	Score    float32
}

// Options tune index behavior.
type Options struct {
	// Weights for the multi-factor distance.
	Weights Weights
	// Threshold is the minimum score for a match (default 0.70).
	Threshold float32
	// MinResults triggers one bounded threshold relaxation when a query
	// finds fewer matches (default 2).
	MinResults int
	// RelaxFactor scales the threshold on relaxation (default 0.8).
	RelaxFactor float32
	// CancelCheckEvery bounds how many candidates are scored between
	// context checks (default 64).
	CancelCheckEvery int
}

func (o *Options) defaults() {
	if o.Weights.isZero() {
		o.Weights = Default
	}
	if o.Threshold <= 0 {
		o.Threshold = 0.70
	}
	if o.MinResults <= 0 {
		o.MinResults = 2
	}
	if o.RelaxFactor <= 0 || o.RelaxFactor >= 1 {
		o.RelaxFactor = 0.8
	}
	if o.CancelCheckEvery <= 0 {
		o.CancelCheckEvery = 64
	}
}

// Index is the fingerprint similarity index.
type Index struct {
	mu     sync.RWMutex
	opts   Options
	byHash map[uint64][]int // structural hash -> entry indices
	locs   []model.SpriteLocation
}

// New creates an empty index.
func New(optFns ...func(*Options)) *Index {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.defaults()

	return &Index{
		opts:   opts,
		byHash: make(map[uint64][]int),
	}
}

// Threshold returns the configured score floor.
func (idx *Index) Threshold() float32 { return idx.opts.Threshold }

// Add registers a location and its fingerprint.
func (idx *Index) Add(loc model.SpriteLocation) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.locs = append(idx.locs, loc)
	h := loc.Fingerprint.StructuralHash()
	idx.byHash[h] = append(idx.byHash[h], len(idx.locs)-1)
}

// Rebuild replaces the index contents with a fresh map snapshot.
func (idx *Index) Rebuild(locs []model.SpriteLocation) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.locs = make([]model.SpriteLocation, len(locs))
	copy(idx.locs, locs)
	idx.byHash = make(map[uint64][]int, len(locs))
	for i, loc := range locs {
		h := loc.Fingerprint.StructuralHash()
		idx.byHash[h] = append(idx.byHash[h], i)
	}
}

// Len returns the number of indexed locations.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.locs)
}

// Nearest returns up to k locations most similar to ref, best first,
// excluding ref's own offset. If fewer than MinResults matches clear the
// threshold, the threshold relaxes once (bounded fan-out) and the
// already-computed scores are refiltered.
//
// The scan checks ctx between batches and returns partial results on
// cancellation rather than an error.
func (idx *Index) Nearest(ctx context.Context, ref model.SpriteLocation, k int) []Match {
	if k <= 0 {
		return nil
	}

	idx.mu.RLock()
	locs := idx.locs
	idx.mu.RUnlock()

	scored := make([]Match, 0, len(locs))
	for i, loc := range locs {
		if i%idx.opts.CancelCheckEvery == 0 && ctx.Err() != nil {
			break
		}
		if loc.Offset == ref.Offset {
			continue
		}
		scored = append(scored, Match{Location: loc, Score: idx.Score(ref, loc)})
	}

	matches := filterMatches(scored, idx.opts.Threshold)
	if len(matches) < idx.opts.MinResults {
		matches = filterMatches(scored, idx.opts.Threshold*idx.opts.RelaxFactor)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Location.Offset < matches[j].Location.Offset
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func filterMatches(scored []Match, threshold float32) []Match {
	out := make([]Match, 0, len(scored))
	for _, m := range scored {
		if m.Score >= threshold {
			out = append(out, m)
		}
	}
	return out
}

// Score computes the weighted similarity between two locations in [0,1].
// Factors: compressed-size delta, fingerprint distance, compression-ratio
// delta and visual-complexity delta.
func (idx *Index) Score(a, b model.SpriteLocation) float32 {
	w := idx.opts.Weights

	sizeSim := 1 - sizeDelta(a.CompressedSize, b.CompressedSize)
	structSim := 1 - fingerprint.Distance(a.Fingerprint, b.Fingerprint)
	ratioSim := 1 - clamp01(absf(a.DensityRatio()-b.DensityRatio())/4)
	complexSim := 1 - clamp01(absf(a.VisualComplexity-b.VisualComplexity))

	score := (w.Size*sizeSim + w.Structural*structSim + w.Ratio*ratioSim + w.Complexity*complexSim) / w.sum()
	return clamp01(score)
}

func sizeDelta(a, b uint32) float32 {
	if a == b {
		return 0
	}
	max := a
	if b > max {
		max = b
	}
	diff := int64(a) - int64(b)
	if diff < 0 {
		diff = -diff
	}
	return clamp01(float32(diff) / float32(max))
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
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
