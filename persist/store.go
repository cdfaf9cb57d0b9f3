// Package persist stores navigation snapshots: the learned region map
// and pattern model serialized by the engine. Stores hold opaque blobs;
// encoding, compression and integrity live with the engine.
package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when no snapshot exists under the given name.
var ErrNotFound = errors.New("persist: snapshot not found")

// Store reads and writes snapshot blobs by name.
type Store interface {
	// Put writes a snapshot atomically, replacing any previous one.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the snapshot bytes, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a snapshot. Deleting a missing snapshot is not an
	// error.
	Delete(ctx context.Context, name string) error
	// List returns snapshot names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// FileStore keeps snapshots in a local directory, one file per name.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put implements Store. The write goes through a temp file and rename so
// a crash never leaves a torn snapshot behind.
func (s *FileStore) Put(_ context.Context, name string, data []byte) error {
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(names)
	return names, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}
