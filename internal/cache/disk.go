package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/spritenav/internal/hash"
	"github.com/hupe1980/spritenav/resource"
)

// Disk entry layout:
//
//	magic   [4]byte  "SNC1"
//	flags   byte     bit0: payload is lz4 block-compressed
//	origLen uint32   uncompressed payload length
//	crc     uint32   CRC32-C of the stored payload
//	payload []byte
//
// Any mismatch (magic, crc, lengths) is treated as a miss and the entry
// is removed.

var diskMagic = [4]byte{'S', 'N', 'C', '1'}

const (
	diskHeaderSize  = 13
	flagCompressed  = 0x01
	diskFileExt     = ".nav"
	writeQueueDepth = 64
)

// DiskOptions configure the persistent tier.
type DiskOptions struct {
	// MaxBytes caps total on-disk size; oldest entries are compacted away
	// first. If 0, 256 MiB.
	MaxBytes int64
	// TTL expires entries by age. If 0, 7 days.
	TTL time.Duration
	// Controller throttles write I/O. Optional.
	Controller *resource.Controller
}

type diskMeta struct {
	path    string
	size    int64
	modTime time.Time
}

type diskWrite struct {
	key Key
	b   []byte
}

// Disk is the persistent tier. Writes are asynchronous; reads verify
// integrity and silently drop corrupt entries.
type Disk struct {
	dir        string
	maxBytes   int64
	ttl        time.Duration
	controller *resource.Controller

	mu    sync.Mutex
	index map[Key]diskMeta
	size  int64

	// wmu serializes Close against in-flight Sets on the write channel.
	wmu    sync.RWMutex
	writes chan diskWrite
	done   chan struct{}
	closed atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDisk opens (or creates) the persistent tier rooted at dir and
// rebuilds its index from the files already present.
func NewDisk(dir string, opts DiskOptions) (*Disk, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 256 << 20
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	d := &Disk{
		dir:        dir,
		maxBytes:   opts.MaxBytes,
		ttl:        opts.TTL,
		controller: opts.Controller,
		index:      make(map[Key]diskMeta),
		writes:     make(chan diskWrite, writeQueueDepth),
		done:       make(chan struct{}),
	}
	if err := d.loadIndex(); err != nil {
		return nil, err
	}

	go d.writer()

	return d, nil
}

// Get returns a cached value, verifying the entry checksum. Corrupt or
// unreadable entries are removed and reported as misses.
func (d *Disk) Get(_ context.Context, key Key) ([]byte, bool) {
	d.mu.Lock()
	meta, ok := d.index[key]
	d.mu.Unlock()

	if !ok {
		d.misses.Add(1)
		return nil, false
	}
	if d.ttl > 0 && time.Since(meta.modTime) > d.ttl {
		d.remove(key)
		d.misses.Add(1)
		return nil, false
	}

	raw, err := os.ReadFile(meta.path)
	if err != nil {
		d.remove(key)
		d.misses.Add(1)
		return nil, false
	}

	payload, ok := decodeEntry(raw)
	if !ok {
		d.remove(key)
		d.misses.Add(1)
		return nil, false
	}

	d.hits.Add(1)
	return payload, true
}

// Set queues an asynchronous write. If the queue is full the entry is
// dropped; the cache is best-effort.
func (d *Disk) Set(_ context.Context, key Key, b []byte) {
	d.wmu.RLock()
	defer d.wmu.RUnlock()

	if d.closed.Load() {
		return
	}
	select {
	case d.writes <- diskWrite{key: key, b: b}:
	default:
	}
}

// Invalidate removes entries matching the predicate.
func (d *Disk) Invalidate(predicate func(key Key) bool) {
	d.mu.Lock()
	var toRemove []Key
	for key := range d.index {
		if predicate(key) {
			toRemove = append(toRemove, key)
		}
	}
	d.mu.Unlock()

	for _, key := range toRemove {
		d.remove(key)
	}
}

// Stats returns hit/miss counters.
func (d *Disk) Stats() (hits, misses int64) {
	return d.hits.Load(), d.misses.Load()
}

// Size returns the current on-disk size of all entries.
func (d *Disk) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Len returns the number of indexed entries.
func (d *Disk) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// Close stops the writer and waits for queued writes to land.
func (d *Disk) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.wmu.Lock()
	close(d.writes)
	d.wmu.Unlock()
	<-d.done
	return nil
}

// Compact removes expired entries and, if the tier still exceeds its byte
// budget, the oldest entries until it fits.
func (d *Disk) Compact() {
	type aged struct {
		key  Key
		meta diskMeta
	}

	d.mu.Lock()
	entries := make([]aged, 0, len(d.index))
	for key, meta := range d.index {
		entries = append(entries, aged{key: key, meta: meta})
	}
	d.mu.Unlock()

	now := time.Now()
	var live []aged
	for _, e := range entries {
		if d.ttl > 0 && now.Sub(e.meta.modTime) > d.ttl {
			d.remove(e.key)
			continue
		}
		live = append(live, e)
	}

	d.mu.Lock()
	over := d.size > d.maxBytes
	d.mu.Unlock()
	if !over {
		return
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].meta.modTime.Before(live[j].meta.modTime)
	})
	for _, e := range live {
		d.mu.Lock()
		fits := d.size <= d.maxBytes
		d.mu.Unlock()
		if fits {
			break
		}
		d.remove(e.key)
	}
}

func (d *Disk) writer() {
	defer close(d.done)

	for w := range d.writes {
		d.writeEntry(w.key, w.b)
	}
}

func (d *Disk) writeEntry(key Key, b []byte) {
	raw := encodeEntry(b)

	if d.controller != nil {
		if err := d.controller.WaitIO(context.Background(), len(raw)); err != nil {
			return
		}
	}

	path := d.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		_ = os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return
	}

	d.mu.Lock()
	if old, ok := d.index[key]; ok {
		d.size -= old.size
	}
	d.index[key] = diskMeta{path: path, size: int64(len(raw)), modTime: time.Now()}
	d.size += int64(len(raw))
	over := d.size > d.maxBytes
	d.mu.Unlock()

	if over {
		d.Compact()
	}
}

func (d *Disk) remove(key Key) {
	d.mu.Lock()
	meta, ok := d.index[key]
	if ok {
		delete(d.index, key)
		d.size -= meta.size
	}
	d.mu.Unlock()

	if ok {
		_ = os.Remove(meta.path)
	}
}

// entryPath maps a key to dir/<hex(ROMID)>/<queryhash>-<mapver>-<engver>.nav.
// The ROMID is hex-encoded, not hashed, so the full key can be rebuilt
// from the path when the index is reloaded.
func (d *Disk) entryPath(key Key) string {
	romDir := hex.EncodeToString([]byte(key.ROMID))
	name := fmt.Sprintf("%016x-%d-%d%s", key.QueryHash, key.MapVersion, key.EngineVersion, diskFileExt)
	return filepath.Join(d.dir, romDir, name)
}

// loadIndex rebuilds the entry index from the directory tree. Files that
// do not parse are removed.
func (d *Disk) loadIndex() error {
	return filepath.WalkDir(d.dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		if !strings.HasSuffix(entry.Name(), diskFileExt) {
			return nil
		}

		key, ok := d.parseEntryPath(path)
		if !ok {
			_ = os.Remove(path)
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}

		d.index[key] = diskMeta{path: path, size: info.Size(), modTime: info.ModTime()}
		d.size += info.Size()
		return nil
	})
}

// parseEntryPath reconstructs a Key from an on-disk path.
func (d *Disk) parseEntryPath(path string) (Key, bool) {
	romID, err := hex.DecodeString(filepath.Base(filepath.Dir(path)))
	if err != nil {
		return Key{}, false
	}

	name := strings.TrimSuffix(filepath.Base(path), diskFileExt)

	var key Key
	if _, err := fmt.Sscanf(name, "%16x-%d-%d", &key.QueryHash, &key.MapVersion, &key.EngineVersion); err != nil {
		return Key{}, false
	}
	key.ROMID = string(romID)
	return key, true
}

func encodeEntry(payload []byte) []byte {
	var flags byte
	stored := payload

	bound := lz4.CompressBlockBound(len(payload))
	dst := make([]byte, bound)
	if n, err := lz4.CompressBlock(payload, dst, nil); err == nil && n > 0 && n < len(payload) {
		stored = dst[:n]
		flags |= flagCompressed
	}

	out := make([]byte, diskHeaderSize+len(stored))
	copy(out[0:4], diskMagic[:])
	out[4] = flags
	binary.LittleEndian.PutUint32(out[5:9], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[9:13], hash.CRC32C(stored))
	copy(out[diskHeaderSize:], stored)
	return out
}

func decodeEntry(raw []byte) ([]byte, bool) {
	if len(raw) < diskHeaderSize {
		return nil, false
	}
	if [4]byte(raw[0:4]) != diskMagic {
		return nil, false
	}

	flags := raw[4]
	origLen := binary.LittleEndian.Uint32(raw[5:9])
	crc := binary.LittleEndian.Uint32(raw[9:13])
	stored := raw[diskHeaderSize:]

	if hash.CRC32C(stored) != crc {
		return nil, false
	}

	if flags&flagCompressed == 0 {
		if uint32(len(stored)) != origLen {
			return nil, false
		}
		return stored, true
	}

	out := make([]byte, origLen)
	n, err := lz4.UncompressBlock(stored, out)
	if err != nil || uint32(n) != origLen {
		return nil, false
	}
	return out, true
}
