package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// LRU is the fast in-memory tier, bounded by entry count and aggregate
// byte size.
type LRU struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	size       int64
	items      map[Key]*list.Element
	evictList  *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key   Key
	value []byte
}

// NewLRU creates an LRU bounded by maxEntries and maxBytes.
func NewLRU(maxEntries int, maxBytes int64) *LRU {
	return &LRU{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		items:      make(map[Key]*list.Element),
		evictList:  list.New(),
	}
}

// Get returns a cached value.
func (c *LRU) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*lruEntry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores a value, evicting least-recently-used entries to stay within
// both budgets. Values larger than the byte budget are not cached.
func (c *LRU) Set(_ context.Context, key Key, b []byte) {
	itemSize := int64(len(b))
	if itemSize > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		old := ent.Value.(*lruEntry)
		c.size += itemSize - int64(len(old.value))
		old.value = b
		c.evictLocked()
		return
	}

	for c.size+itemSize > c.maxBytes || c.evictList.Len() >= c.maxEntries {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElementLocked(back)
	}

	ent := &lruEntry{key: key, value: b}
	c.items[key] = c.evictList.PushFront(ent)
	c.size += itemSize
}

// Invalidate removes entries matching the predicate.
func (c *LRU) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}
	for _, e := range toRemove {
		c.removeElementLocked(e)
	}
}

// Stats returns hit/miss counters.
func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current aggregate value size in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the current entry count.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Close implements Tier.
func (c *LRU) Close() error { return nil }

func (c *LRU) evictLocked() {
	for c.size > c.maxBytes {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElementLocked(back)
	}
}

func (c *LRU) removeElementLocked(e *list.Element) {
	c.evictList.Remove(e)
	ent := e.Value.(*lruEntry)
	delete(c.items, ent.key)
	c.size -= int64(len(ent.value))
}
