package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(romID string, queryHash uint64) Key {
	return Key{ROMID: romID, QueryHash: queryHash, MapVersion: 7, EngineVersion: 1}
}

func TestLRUGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 1<<20)

	key := testKey("rom", 1)
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, []byte("hints"))
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("hints"), got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUEvictsByCount(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, 1<<20)

	c.Set(ctx, testKey("rom", 1), []byte("a"))
	c.Set(ctx, testKey("rom", 2), []byte("b"))

	// Touch 1 so 2 is the eviction victim.
	_, ok := c.Get(ctx, testKey("rom", 1))
	require.True(t, ok)

	c.Set(ctx, testKey("rom", 3), []byte("c"))
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(ctx, testKey("rom", 2))
	assert.False(t, ok)
	_, ok = c.Get(ctx, testKey("rom", 1))
	assert.True(t, ok)
}

func TestLRUEvictsByBytes(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(100, 100)

	c.Set(ctx, testKey("rom", 1), bytes.Repeat([]byte{1}, 60))
	c.Set(ctx, testKey("rom", 2), bytes.Repeat([]byte{2}, 60))

	assert.LessOrEqual(t, c.Size(), int64(100))
	_, ok := c.Get(ctx, testKey("rom", 1))
	assert.False(t, ok)

	// Oversized values are not cached at all.
	c.Set(ctx, testKey("rom", 3), bytes.Repeat([]byte{3}, 200))
	_, ok = c.Get(ctx, testKey("rom", 3))
	assert.False(t, ok)
}

func TestLRUInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 1<<20)

	c.Set(ctx, testKey("a", 1), []byte("x"))
	c.Set(ctx, testKey("b", 2), []byte("y"))

	c.Invalidate(func(k Key) bool { return k.ROMID == "a" })

	_, ok := c.Get(ctx, testKey("a", 1))
	assert.False(t, ok)
	_, ok = c.Get(ctx, testKey("b", 2))
	assert.True(t, ok)
}

func TestDiskRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := NewDisk(dir, DiskOptions{})
	require.NoError(t, err)

	key := testKey("rom-a", 42)
	value := bytes.Repeat([]byte("sprite hint payload "), 50)
	d.Set(ctx, key, value)
	require.NoError(t, d.Close())

	// Reopen: the index is rebuilt from disk and the entry survives.
	d, err = NewDisk(dir, DiskOptions{})
	require.NoError(t, err)
	defer d.Close()

	got, ok := d.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, value, got)
	assert.Equal(t, 1, d.Len())
}

func TestDiskCorruptionIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := NewDisk(dir, DiskOptions{})
	require.NoError(t, err)

	key := testKey("rom-a", 42)
	d.Set(ctx, key, bytes.Repeat([]byte("payload"), 100))
	require.NoError(t, d.Close())

	// Flip a payload byte in every entry file.
	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !strings.HasSuffix(path, diskFileExt) {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		raw[len(raw)-1] ^= 0xFF
		return os.WriteFile(path, raw, 0o644)
	})
	require.NoError(t, err)

	d, err = NewDisk(dir, DiskOptions{})
	require.NoError(t, err)
	defer d.Close()

	_, ok := d.Get(ctx, key)
	assert.False(t, ok)

	// The corrupt entry is removed, not retried.
	assert.Equal(t, 0, d.Len())
}

func TestDiskTruncatedEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := NewDisk(dir, DiskOptions{})
	require.NoError(t, err)

	key := testKey("rom-a", 7)
	d.Set(ctx, key, []byte("short"))
	require.NoError(t, d.Close())

	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !strings.HasSuffix(path, diskFileExt) {
			return err
		}
		return os.Truncate(path, 4)
	})
	require.NoError(t, err)

	d, err = NewDisk(dir, DiskOptions{})
	require.NoError(t, err)
	defer d.Close()

	_, ok := d.Get(ctx, key)
	assert.False(t, ok)
}

func TestDiskCompactEnforcesBudget(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := NewDisk(dir, DiskOptions{MaxBytes: 400})
	require.NoError(t, err)

	for i := uint64(0); i < 8; i++ {
		d.Set(ctx, testKey("rom", i), bytes.Repeat([]byte{byte(i)}, 100))
	}
	require.NoError(t, d.Close())

	d, err = NewDisk(dir, DiskOptions{MaxBytes: 400})
	require.NoError(t, err)
	defer d.Close()

	d.Compact()
	assert.LessOrEqual(t, d.Size(), int64(400))
}

func TestEncodeDecodeEntry(t *testing.T) {
	payloads := [][]byte{
		bytes.Repeat([]byte("compressible "), 100),
		{0x01},
		{},
	}
	for _, payload := range payloads {
		raw := encodeEntry(payload)
		got, ok := decodeEntry(raw)
		require.True(t, ok)
		assert.Equal(t, payload, got)
	}

	_, ok := decodeEntry([]byte("not an entry"))
	assert.False(t, ok)
}

func TestTwoTierGetOrCompute(t *testing.T) {
	ctx := context.Background()
	tt := NewTwoTier(NewLRU(10, 1<<20), nil)

	computes := 0
	compute := func(context.Context) ([]byte, error) {
		computes++
		return []byte("result"), nil
	}

	key := testKey("rom", 1)
	got, cached, err := tt.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("result"), got)

	got, cached, err = tt.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("result"), got)
	assert.Equal(t, 1, computes)
}

func TestTwoTierComputeErrorNotCached(t *testing.T) {
	ctx := context.Background()
	tt := NewTwoTier(NewLRU(10, 1<<20), nil)

	boom := errors.New("strategy failed")
	_, _, err := tt.GetOrCompute(ctx, testKey("rom", 1), func(context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	// The failure is not cached: the next call computes again.
	got, cached, err := tt.GetOrCompute(ctx, testKey("rom", 1), func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("ok"), got)
}

func TestTwoTierPromotesFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := NewDisk(dir, DiskOptions{})
	require.NoError(t, err)
	key := testKey("rom", 9)
	d.Set(ctx, key, []byte("persisted"))
	require.NoError(t, d.Close())

	d, err = NewDisk(dir, DiskOptions{})
	require.NoError(t, err)
	mem := NewLRU(10, 1<<20)
	tt := NewTwoTier(mem, d)
	defer tt.Close()

	got, cached, err := tt.GetOrCompute(ctx, key, func(context.Context) ([]byte, error) {
		t.Fatal("compute must not run on a disk hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("persisted"), got)

	// Promoted to memory.
	_, ok := mem.Get(ctx, key)
	assert.True(t, ok)
}

func TestTwoTierInvalidateAll(t *testing.T) {
	ctx := context.Background()
	tt := NewTwoTier(NewLRU(10, 1<<20), nil)

	tt.Put(ctx, testKey("rom", 1), []byte("x"))
	tt.InvalidateAll()

	_, cached, err := tt.GetOrCompute(ctx, testKey("rom", 1), func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
}
