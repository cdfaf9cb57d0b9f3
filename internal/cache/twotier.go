// Package cache implements the two-level result cache: a bounded
// in-memory LRU backed by an optional persistent disk tier with
// integrity-checked, compressed entries.
package cache

import "context"

// TwoTier layers the memory LRU over the disk tier. The disk tier is
// optional.
type TwoTier struct {
	memory *LRU
	disk   *Disk
}

// NewTwoTier combines the tiers. disk may be nil.
func NewTwoTier(memory *LRU, disk *Disk) *TwoTier {
	return &TwoTier{memory: memory, disk: disk}
}

// GetOrCompute returns the cached value for key, consulting memory first,
// then disk, then compute. Disk hits are promoted to memory; computed
// values populate both tiers. cached reports whether compute was skipped.
func (c *TwoTier) GetOrCompute(ctx context.Context, key Key, compute func(ctx context.Context) ([]byte, error)) (b []byte, cached bool, err error) {
	if b, ok := c.memory.Get(ctx, key); ok {
		return b, true, nil
	}

	if c.disk != nil {
		if b, ok := c.disk.Get(ctx, key); ok {
			c.memory.Set(ctx, key, b)
			return b, true, nil
		}
	}

	b, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}

	c.memory.Set(ctx, key, b)
	if c.disk != nil {
		c.disk.Set(ctx, key, b)
	}
	return b, false, nil
}

// Put stores a value in both tiers without a lookup.
func (c *TwoTier) Put(ctx context.Context, key Key, b []byte) {
	c.memory.Set(ctx, key, b)
	if c.disk != nil {
		c.disk.Set(ctx, key, b)
	}
}

// Invalidate removes matching entries from both tiers.
func (c *TwoTier) Invalidate(predicate func(key Key) bool) {
	c.memory.Invalidate(predicate)
	if c.disk != nil {
		c.disk.Invalidate(predicate)
	}
}

// InvalidateAll drops every entry in both tiers.
func (c *TwoTier) InvalidateAll() {
	c.Invalidate(func(Key) bool { return true })
}

// Stats aggregates per-tier hit/miss counters.
func (c *TwoTier) Stats() (memHits, memMisses, diskHits, diskMisses int64) {
	memHits, memMisses = c.memory.Stats()
	if c.disk != nil {
		diskHits, diskMisses = c.disk.Stats()
	}
	return memHits, memMisses, diskHits, diskMisses
}

// MemoryStats returns the memory tier counters.
func (c *TwoTier) MemoryStats() (hits, misses int64) {
	return c.memory.Stats()
}

// Compact runs disk tier compaction, if a disk tier exists.
func (c *TwoTier) Compact() {
	if c.disk != nil {
		c.disk.Compact()
	}
}

// Close releases both tiers.
func (c *TwoTier) Close() error {
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}
