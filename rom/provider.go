// Package rom abstracts read access to the ROM image. The engine only
// consumes this interface; mapping, loading and lifetime of the actual
// file belong to the caller.
package rom

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// ByteProvider reads raw bytes from the ROM image.
type ByteProvider interface {
	// Read returns n bytes starting at offset. Out-of-bounds reads and
	// I/O errors return a *ReadError; the engine treats these as
	// recoverable per-query failures.
	Read(ctx context.Context, offset uint64, n uint32) ([]byte, error)
	// Size returns the ROM size in bytes.
	Size() uint64
}

// ReadError indicates an out-of-bounds or failed ROM read.
type ReadError struct {
	Offset uint64
	N      uint32
	cause  error
}

func (e *ReadError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("rom read of %d bytes at 0x%X failed: %v", e.N, e.Offset, e.cause)
	}
	return fmt.Sprintf("rom read of %d bytes at 0x%X out of bounds", e.N, e.Offset)
}

func (e *ReadError) Unwrap() error { return e.cause }

// BytesProvider serves a ROM already resident in memory.
type BytesProvider struct {
	data []byte
}

// NewBytesProvider wraps an in-memory ROM image. The caller must not
// mutate data afterwards.
func NewBytesProvider(data []byte) *BytesProvider {
	return &BytesProvider{data: data}
}

// Read implements ByteProvider.
func (p *BytesProvider) Read(_ context.Context, offset uint64, n uint32) ([]byte, error) {
	end := offset + uint64(n)
	if end > uint64(len(p.data)) || end < offset {
		return nil, &ReadError{Offset: offset, N: n}
	}
	out := make([]byte, n)
	copy(out, p.data[offset:end])
	return out, nil
}

// Size implements ByteProvider.
func (p *BytesProvider) Size() uint64 { return uint64(len(p.data)) }

// FileProvider serves a ROM from an open file.
type FileProvider struct {
	mu   sync.Mutex
	f    *os.File
	size uint64
}

// OpenFile opens path for read-only ROM access.
func OpenFile(path string) (*FileProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &FileProvider{f: f, size: uint64(info.Size())}, nil
}

// Read implements ByteProvider.
func (p *FileProvider) Read(_ context.Context, offset uint64, n uint32) ([]byte, error) {
	end := offset + uint64(n)
	if end > p.size || end < offset {
		return nil, &ReadError{Offset: offset, N: n}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]byte, n)
	if _, err := p.f.ReadAt(out, int64(offset)); err != nil {
		return nil, &ReadError{Offset: offset, N: n, cause: err}
	}
	return out, nil
}

// Size implements ByteProvider.
func (p *FileProvider) Size() uint64 { return p.size }

// Close releases the underlying file.
func (p *FileProvider) Close() error { return p.f.Close() }
