// Package regionmap stores confirmed sprite locations in offset order and
// answers range and proximity queries. It is the single source of truth
// the analyzers and predictor derive from.
package regionmap

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/spritenav/model"
)

// DefaultBucketSize is the coarse spatial bucket width (64 KiB).
const DefaultBucketSize = 0x10000

// Neighbor pairs a location with its distance from a query offset.
type Neighbor struct {
	Location model.SpriteLocation
	Distance uint64
}

// Gap is a byte range between two confirmed locations.
type Gap struct {
	Start uint64 // first byte past the previous location
	End   uint64 // offset of the next location
}

// Map is an ordered, spatially indexed collection of confirmed sprite
// locations keyed by offset.
//
// Internals: a slice sorted by offset for O(log n) range queries, an
// offset map for O(1) exact lookups, and a Roaring bitmap of occupied
// buckets so "what's near offset X" can skip empty space in O(1).
type Map struct {
	mu         sync.RWMutex
	romSize    uint64
	bucketSize uint64

	locs     []model.SpriteLocation
	byOffset map[uint64]model.SpriteLocation

	occupied     *roaring.Bitmap // bucket ids containing at least one location
	bucketCounts map[uint32]int

	version uint64
}

// Option configures a Map.
type Option func(*Map)

// WithBucketSize overrides the spatial bucket width.
func WithBucketSize(size uint64) Option {
	return func(m *Map) {
		if size > 0 {
			m.bucketSize = size
		}
	}
}

// New creates an empty map for a ROM of the given size.
func New(romSize uint64, opts ...Option) *Map {
	m := &Map{
		romSize:      romSize,
		bucketSize:   DefaultBucketSize,
		byOffset:     make(map[uint64]model.SpriteLocation),
		occupied:     roaring.New(),
		bucketCounts: make(map[uint32]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Map) bucketOf(offset uint64) uint32 {
	return uint32(offset / m.bucketSize)
}

// Insert adds a confirmed location. A duplicate offset replaces the prior
// entry only if the new confidence is not lower; otherwise the map is
// unchanged and Insert returns false.
func (m *Map) Insert(loc model.SpriteLocation) (bool, error) {
	if err := loc.Validate(m.romSize); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byOffset[loc.Offset]; ok {
		if loc.Confidence < existing.Confidence {
			return false, nil
		}
		i := m.searchLocked(loc.Offset)
		m.locs[i] = loc
		m.byOffset[loc.Offset] = loc
		m.version++
		return true, nil
	}

	i := m.searchLocked(loc.Offset)
	m.locs = append(m.locs, model.SpriteLocation{})
	copy(m.locs[i+1:], m.locs[i:])
	m.locs[i] = loc
	m.byOffset[loc.Offset] = loc

	b := m.bucketOf(loc.Offset)
	m.occupied.Add(b)
	m.bucketCounts[b]++

	m.version++
	return true, nil
}

// searchLocked returns the index of the first location with offset >= off.
func (m *Map) searchLocked(off uint64) int {
	return sort.Search(len(m.locs), func(i int) bool {
		return m.locs[i].Offset >= off
	})
}

// Get returns the location at an exact offset.
func (m *Map) Get(offset uint64) (model.SpriteLocation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.byOffset[offset]
	return loc, ok
}

// Contains reports whether a location exists at the exact offset.
func (m *Map) Contains(offset uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byOffset[offset]
	return ok
}

// Len returns the number of confirmed locations.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.locs)
}

// Version increments on every successful mutation. Derived structures use
// it to detect staleness and the cache embeds it in keys.
func (m *Map) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// ROMSize returns the ROM size the map validates against.
func (m *Map) ROMSize() uint64 { return m.romSize }

// BucketSize returns the spatial bucket width.
func (m *Map) BucketSize() uint64 { return m.bucketSize }

// Locations returns a copy of all locations in ascending offset order.
func (m *Map) Locations() []model.SpriteLocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SpriteLocation, len(m.locs))
	copy(out, m.locs)
	return out
}

// RangeQuery returns all locations with start <= offset < end, in offset
// order.
func (m *Map) RangeQuery(start, end uint64) []model.SpriteLocation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo := m.searchLocked(start)
	hi := m.searchLocked(end)
	out := make([]model.SpriteLocation, hi-lo)
	copy(out, m.locs[lo:hi])
	return out
}

// Nearest returns up to k locations closest to offset, nearest first.
// The bucket bitmap prunes the search to occupied space before the exact
// two-sided scan refines by distance.
func (m *Map) Nearest(offset uint64, k int) []Neighbor {
	if k <= 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.locs) == 0 {
		return nil
	}

	i := m.searchLocked(offset)

	// Walk outward from the insertion point, merging the two frontiers by
	// distance. Collecting 2k candidates before sorting keeps ties exact.
	candidates := make([]Neighbor, 0, 2*k)
	lo, hi := i-1, i
	for len(candidates) < 2*k && (lo >= 0 || hi < len(m.locs)) {
		var dLo, dHi uint64
		haveLo, haveHi := lo >= 0, hi < len(m.locs)
		if haveLo {
			dLo = offset - m.locs[lo].Offset
		}
		if haveHi {
			dHi = m.locs[hi].Offset - offset
		}
		switch {
		case haveLo && (!haveHi || dLo <= dHi):
			candidates = append(candidates, Neighbor{Location: m.locs[lo], Distance: dLo})
			lo--
		case haveHi:
			candidates = append(candidates, Neighbor{Location: m.locs[hi], Distance: dHi})
			hi++
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Distance != candidates[b].Distance {
			return candidates[a].Distance < candidates[b].Distance
		}
		return candidates[a].Location.Offset < candidates[b].Location.Offset
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Gaps returns byte ranges of at least minSize between consecutive
// locations. Gaps are where undiscovered sprites hide.
func (m *Map) Gaps(minSize uint64) []Gap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.locs) < 2 {
		return nil
	}

	var gaps []Gap
	for i := 0; i < len(m.locs)-1; i++ {
		start := m.locs[i].EndOffset()
		end := m.locs[i+1].Offset
		if end > start && end-start >= minSize {
			gaps = append(gaps, Gap{Start: start, End: end})
		}
	}
	return gaps
}

// DensityBuckets returns a copy of the per-bucket location counts.
func (m *Map) DensityBuckets() map[uint32]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[uint32]int, len(m.bucketCounts))
	for b, n := range m.bucketCounts {
		out[b] = n
	}
	return out
}

// OccupiedNear reports whether any location exists in the bucket
// containing offset or its immediate neighbors.
func (m *Map) OccupiedNear(offset uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.bucketOf(offset)
	if m.occupied.Contains(b) {
		return true
	}
	if b > 0 && m.occupied.Contains(b-1) {
		return true
	}
	return m.occupied.Contains(b + 1)
}

// Clear removes all locations.
func (m *Map) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locs = nil
	m.byOffset = make(map[uint64]model.SpriteLocation)
	m.occupied.Clear()
	m.bucketCounts = make(map[uint32]int)
	m.version++
}
