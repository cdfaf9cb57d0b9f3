package cache

import "context"

// Key identifies a cached analysis result. It must be deterministic:
// identical queries against identical engine state produce identical keys.
type Key struct {
	// ROMID identifies the ROM image.
	ROMID string
	// MapVersion is the region-map version the value was derived from.
	// Any mutation bumps the version, so stale entries can never be
	// returned for a newer map.
	MapVersion uint64
	// QueryHash is the hash of the query context (cursor, limits, window).
	QueryHash uint64
	// EngineVersion invalidates persisted entries across engine releases.
	EngineVersion uint32
}

// Tier is a byte-oriented cache level. Returned slices must be treated as
// read-only.
type Tier interface {
	// Get returns a cached value. ok=false on miss; corruption in a
	// persistent tier is also reported as a miss.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set stores a value. The caller must treat b as immutable afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Stats returns hit/miss counters.
	Stats() (hits, misses int64)
	// Close releases resources (background writers, files).
	Close() error
}
