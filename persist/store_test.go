package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("snapshot bytes")
	require.NoError(t, s.Put(ctx, "game/map.snap", data))

	got, err := s.Get(ctx, "game/map.snap")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Put replaces atomically.
	require.NoError(t, s.Put(ctx, "game/map.snap", []byte("v2")))
	got, err = s.Get(ctx, "game/map.snap")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestFileStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, "missing.snap")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "a.snap", []byte("x")))
	require.NoError(t, s.Delete(ctx, "a.snap"))
	_, err = s.Get(ctx, "a.snap")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing snapshot is not an error.
	assert.NoError(t, s.Delete(ctx, "a.snap"))
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "game-a/v1.snap", []byte("1")))
	require.NoError(t, s.Put(ctx, "game-a/v2.snap", []byte("2")))
	require.NoError(t, s.Put(ctx, "game-b/v1.snap", []byte("3")))

	names, err := s.List(ctx, "game-a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"game-a/v1.snap", "game-a/v2.snap"}, names)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
