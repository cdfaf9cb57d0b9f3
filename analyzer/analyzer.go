// Package analyzer derives spacing, size and density statistics from a
// region-map snapshot. All analysis functions are pure functions of the
// location list they receive, which makes their results safe to cache
// deterministically.
package analyzer

import (
	"math"
	"sort"

	"github.com/hupe1980/spritenav/model"
)

// SpacingRound buckets spacing distances to this granularity before
// counting. Sprite tables are typically 16-byte aligned.
const SpacingRound = 0x10

// DistanceCount is one spacing histogram bucket.
type DistanceCount struct {
	Distance uint64 `json:"distance"`
	Count    int    `json:"count"`
}

// SpacingStats describes the spacing pattern between sequential locations.
type SpacingStats struct {
	// CommonDistances is ordered by count descending.
	CommonDistances []DistanceCount `json:"common_distances"`
	// Confidence is dominant-bucket count over total deltas, in [0,1].
	Confidence  float32 `json:"confidence"`
	TotalDeltas int     `json:"total_deltas"`
	Mean        float64 `json:"mean"`
}

// SizeCount is one size histogram bucket.
type SizeCount struct {
	Size  uint32 `json:"size"`
	Count int    `json:"count"`
}

// SizeCategory is a quartile-based size class.
type SizeCategory struct {
	Count     int    `json:"count"`
	Threshold uint32 `json:"threshold"`
}

// RatioStats summarizes compression ratios.
type RatioStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
}

// SizeStats describes sprite size distribution.
type SizeStats struct {
	CommonSizes      []SizeCount  `json:"common_sizes"`
	Small            SizeCategory `json:"small"`
	Medium           SizeCategory `json:"medium"`
	Large            SizeCategory `json:"large"`
	MeanCompressed   float64      `json:"mean_compressed"`
	MeanDecompressed float64      `json:"mean_decompressed"`
	Compression      RatioStats   `json:"compression"`
	Confidence       float32      `json:"confidence"`
}

// DensityStats describes how locations cluster across the address space.
type DensityStats struct {
	BucketSize uint64 `json:"bucket_size"`
	// Buckets maps bucket id to location count.
	Buckets map[uint32]int `json:"buckets"`
	// HighDensity lists the top-N bucket ids by count, densest first.
	HighDensity []uint32 `json:"high_density"`
	MaxCount    int      `json:"max_count"`
}

// Model is the full derived pattern state. It is recomputed whole when the
// region map changes past the dirty threshold, never patched in place.
type Model struct {
	Spacing SpacingStats `json:"spacing"`
	Sizes   SizeStats    `json:"sizes"`
	Density DensityStats `json:"density"`
	// MapVersion is the region-map version this model was derived from.
	MapVersion uint64 `json:"map_version"`
}

// HighDensityTopN bounds how many dense buckets the density analysis flags.
const HighDensityTopN = 8

// Analyze runs all three analyses over a location snapshot. locs must be
// in ascending offset order (region-map iteration order).
func Analyze(locs []model.SpriteLocation, bucketSize uint64) *Model {
	return &Model{
		Spacing: AnalyzeSpacing(locs),
		Sizes:   AnalyzeSizes(locs),
		Density: AnalyzeDensity(locs, bucketSize, HighDensityTopN),
	}
}

// AnalyzeSpacing computes the distance histogram between sequential
// locations. Distances are rounded to SpacingRound before counting;
// confidence is the dominant bucket's share of all deltas.
func AnalyzeSpacing(locs []model.SpriteLocation) SpacingStats {
	if len(locs) < 2 {
		return SpacingStats{}
	}

	counts := make(map[uint64]int)
	var sum float64
	total := 0
	for i := 0; i < len(locs)-1; i++ {
		d := locs[i+1].Offset - locs[i].Offset
		rounded := roundDistance(d)
		counts[rounded]++
		sum += float64(d)
		total++
	}

	common := make([]DistanceCount, 0, len(counts))
	for d, n := range counts {
		common = append(common, DistanceCount{Distance: d, Count: n})
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].Count != common[j].Count {
			return common[i].Count > common[j].Count
		}
		return common[i].Distance < common[j].Distance
	})

	conf := float32(common[0].Count) / float32(total)
	return SpacingStats{
		CommonDistances: common,
		Confidence:      clamp01(conf),
		TotalDeltas:     total,
		Mean:            sum / float64(total),
	}
}

func roundDistance(d uint64) uint64 {
	return (d + SpacingRound/2) / SpacingRound * SpacingRound
}

// AnalyzeSizes computes the size histogram, quartile categories and
// compression-ratio statistics.
func AnalyzeSizes(locs []model.SpriteLocation) SizeStats {
	if len(locs) == 0 {
		return SizeStats{}
	}

	sizes := make([]uint32, len(locs))
	ratios := make([]float64, len(locs))
	var sumC, sumD float64
	counts := make(map[uint32]int)
	for i, loc := range locs {
		sizes[i] = loc.CompressedSize
		ratios[i] = float64(loc.DensityRatio())
		sumC += float64(loc.CompressedSize)
		sumD += float64(loc.DecompressedSize)
		counts[loc.CompressedSize]++
	}

	common := make([]SizeCount, 0, len(counts))
	for s, n := range counts {
		common = append(common, SizeCount{Size: s, Count: n})
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].Count != common[j].Count {
			return common[i].Count > common[j].Count
		}
		return common[i].Size < common[j].Size
	})

	sorted := make([]uint32, len(sizes))
	copy(sorted, sizes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	q25 := sorted[len(sorted)/4]
	q75 := sorted[len(sorted)*3/4]

	var small, medium, large int
	for _, s := range sizes {
		switch {
		case s <= q25:
			small++
		case s <= q75:
			medium++
		default:
			large++
		}
	}

	return SizeStats{
		CommonSizes:      common,
		Small:            SizeCategory{Count: small, Threshold: q25},
		Medium:           SizeCategory{Count: medium, Threshold: q75},
		Large:            SizeCategory{Count: large, Threshold: q75},
		MeanCompressed:   sumC / float64(len(locs)),
		MeanDecompressed: sumD / float64(len(locs)),
		Compression:      ratioStats(ratios),
		Confidence:       clamp01(float32(common[0].Count) / float32(len(locs))),
	}
}

func ratioStats(ratios []float64) RatioStats {
	var sum float64
	for _, r := range ratios {
		sum += r
	}
	mean := sum / float64(len(ratios))

	sorted := make([]float64, len(ratios))
	copy(sorted, ratios)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]

	var sq float64
	for _, r := range ratios {
		d := r - mean
		sq += d * d
	}
	stddev := 0.0
	if len(ratios) > 1 {
		stddev = math.Sqrt(sq / float64(len(ratios)-1))
	}

	return RatioStats{Mean: mean, Median: median, StdDev: stddev}
}

// AnalyzeDensity counts locations per fixed-size bucket and flags the
// topN densest buckets.
func AnalyzeDensity(locs []model.SpriteLocation, bucketSize uint64, topN int) DensityStats {
	if bucketSize == 0 {
		bucketSize = 0x10000
	}
	stats := DensityStats{
		BucketSize: bucketSize,
		Buckets:    make(map[uint32]int),
	}
	if len(locs) == 0 {
		return stats
	}

	for _, loc := range locs {
		b := uint32(loc.Offset / bucketSize)
		stats.Buckets[b]++
		if stats.Buckets[b] > stats.MaxCount {
			stats.MaxCount = stats.Buckets[b]
		}
	}

	ids := make([]uint32, 0, len(stats.Buckets))
	for b := range stats.Buckets {
		ids = append(ids, b)
	}
	sort.Slice(ids, func(i, j int) bool {
		if stats.Buckets[ids[i]] != stats.Buckets[ids[j]] {
			return stats.Buckets[ids[i]] > stats.Buckets[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > topN {
		ids = ids[:topN]
	}
	stats.HighDensity = ids

	return stats
}

// DensityAt returns the normalized density at offset in [0,1]: the
// location count of the containing bucket over the maximum bucket count.
func (d DensityStats) DensityAt(offset uint64) float32 {
	if d.MaxCount == 0 || d.BucketSize == 0 {
		return 0
	}
	return float32(d.Buckets[uint32(offset/d.BucketSize)]) / float32(d.MaxCount)
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
