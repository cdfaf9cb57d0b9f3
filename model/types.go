package model

import (
	"fmt"
	"sort"

	"github.com/hupe1980/spritenav/fingerprint"
)

// RegionType is a coarse classification of what a byte range likely contains.
type RegionType uint8

const (
	RegionUnknown RegionType = iota
	RegionSprite
	RegionPalette
	RegionHighDensity
	RegionSparse
)

func (r RegionType) String() string {
	switch r {
	case RegionSprite:
		return "sprite"
	case RegionPalette:
		return "palette"
	case RegionHighDensity:
		return "high-density"
	case RegionSparse:
		return "sparse"
	case RegionUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("RegionType(%d)", uint8(r))
	}
}

// StrategyKind identifies which navigation strategy produced a hint or
// discovered a location.
type StrategyKind uint8

const (
	StrategyUnknown StrategyKind = iota
	StrategyLinear
	StrategyPatternBased
	StrategySimilarityBased
	StrategyHybrid
	StrategyPlugin
)

func (s StrategyKind) String() string {
	switch s {
	case StrategyLinear:
		return "linear"
	case StrategyPatternBased:
		return "pattern"
	case StrategySimilarityBased:
		return "similarity"
	case StrategyHybrid:
		return "hybrid"
	case StrategyPlugin:
		return "plugin"
	case StrategyUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("StrategyKind(%d)", uint8(s))
	}
}

// SpriteLocation is a confirmed sprite location. It is immutable once
// created; the region map replaces rather than mutates entries.
type SpriteLocation struct {
	Offset           uint64                  `json:"offset"`
	CompressedSize   uint32                  `json:"compressed_size"`
	DecompressedSize uint32                  `json:"decompressed_size"`
	Confidence       float32                 `json:"confidence"`
	Region           RegionType              `json:"region"`
	Fingerprint      fingerprint.Fingerprint `json:"fingerprint"`
	DiscoveredBy     StrategyKind            `json:"discovered_by"`
	VisualComplexity float32                 `json:"visual_complexity"`
}

// EndOffset returns the first byte past the compressed data.
func (s SpriteLocation) EndOffset() uint64 {
	return s.Offset + uint64(s.CompressedSize)
}

// DensityRatio is decompressed over compressed size. Compression may
// expand, so the ratio can be below 1.
func (s SpriteLocation) DensityRatio() float32 {
	if s.CompressedSize == 0 {
		return 0
	}
	return float32(s.DecompressedSize) / float32(s.CompressedSize)
}

// Validate checks the location invariants against the ROM size.
func (s SpriteLocation) Validate(romSize uint64) error {
	if s.CompressedSize == 0 {
		return &InvalidLocationError{Offset: s.Offset, Reason: "compressed size is zero"}
	}
	if s.DecompressedSize == 0 {
		return &InvalidLocationError{Offset: s.Offset, Reason: "decompressed size is zero"}
	}
	if s.Offset >= romSize {
		return &InvalidLocationError{
			Offset: s.Offset,
			Reason: fmt.Sprintf("offset exceeds ROM size 0x%X", romSize),
		}
	}
	// EndOffset wraps on uint64 overflow; a wrapped end is always invalid.
	if end := s.EndOffset(); end < s.Offset || end > romSize {
		return &InvalidLocationError{
			Offset: s.Offset,
			Reason: fmt.Sprintf("end offset 0x%X exceeds ROM size 0x%X", end, romSize),
		}
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return &InvalidLocationError{Offset: s.Offset, Reason: fmt.Sprintf("confidence %v outside [0,1]", s.Confidence)}
	}
	return nil
}

// InvalidLocationError indicates a location that violates the data model
// invariants. Such locations are rejected, never inserted.
type InvalidLocationError struct {
	Offset uint64
	Reason string
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid location at 0x%X: %s", e.Offset, e.Reason)
}

// NavigationHint is a ranked, unconfirmed candidate offset. Hints are
// query-scoped and never stored in the region map.
type NavigationHint struct {
	TargetOffset    uint64       `json:"target_offset"`
	Confidence      float32      `json:"confidence"`
	Reasoning       string       `json:"reasoning"`
	Strategy        StrategyKind `json:"strategy"`
	ExpectedRegion  RegionType   `json:"expected_region"`
	EstimatedSize   uint32       `json:"estimated_size,omitempty"`
	SimilarityScore float32      `json:"similarity_score,omitempty"`
	PatternStrength float32      `json:"pattern_strength,omitempty"`

	// Priority defaults to 0.5; strategies raise or lower it to bias the
	// final ordering. DistancePenalty is non-negative.
	Priority        float32 `json:"priority"`
	DistancePenalty float32 `json:"distance_penalty"`
}

// Score is the final ranking value: max(0, Confidence*Priority - DistancePenalty).
func (h NavigationHint) Score() float32 {
	s := h.Confidence*h.Priority - h.DistancePenalty
	if s < 0 {
		return 0
	}
	return s
}

// SortHints orders hints by score descending, ties broken by lower target
// offset.
func SortHints(hints []NavigationHint) {
	sort.Slice(hints, func(i, j int) bool {
		si, sj := hints[i].Score(), hints[j].Score()
		if si != sj {
			return si > sj
		}
		return hints[i].TargetOffset < hints[j].TargetOffset
	})
}

// NavigationContext describes a hint query: which ROM, where the cursor
// is, and how many hints the caller wants.
type NavigationContext struct {
	// ROMID identifies the ROM image (content hash or canonical path).
	ROMID string
	// Cursor is the current byte position in the ROM.
	Cursor uint64
	// MaxHints bounds the result size. Values <= 0 use the engine default.
	MaxHints int
	// Window is the cursor-local byte range similarity strategies search.
	// Zero uses the engine default.
	Window uint64
}
