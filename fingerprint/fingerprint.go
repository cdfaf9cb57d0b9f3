// Package fingerprint computes compact content signatures for compressed
// sprite data. Fingerprints are cheap to compute, fixed-size and
// order-sensitive: two different byte sequences rarely collide, and the
// same bytes always produce the same fingerprint.
package fingerprint

import (
	"encoding/binary"
	"math/bits"

	"github.com/zeebo/xxh3"
)

// Size is the fingerprint length in bytes: an 8-byte structural hash
// followed by a 16-bucket byte-class histogram.
const Size = 24

const histogramBuckets = 16

// Fingerprint is a fixed-size content signature.
//
// Layout:
//
//	[0:8]   xxh3 of the raw bytes (order-sensitive structural hash)
//	[8:24]  byte-value histogram, 16 buckets of 16 values each,
//	        scaled to 0..255
type Fingerprint [Size]byte

// New computes the fingerprint of raw. An empty input yields the zero
// fingerprint.
func New(raw []byte) Fingerprint {
	var fp Fingerprint
	if len(raw) == 0 {
		return fp
	}

	binary.BigEndian.PutUint64(fp[:8], xxh3.Hash(raw))

	var hist [histogramBuckets]int
	for _, b := range raw {
		hist[b>>4]++
	}
	for i, n := range hist {
		fp[8+i] = byte(n * 255 / len(raw))
	}

	return fp
}

// StructuralHash returns the order-sensitive hash component.
func (f Fingerprint) StructuralHash() uint64 {
	return binary.BigEndian.Uint64(f[:8])
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// HashDistance returns the normalized bit distance between the structural
// hashes of a and b in [0,1]. Identical content scores 0.
func HashDistance(a, b Fingerprint) float32 {
	x := a.StructuralHash() ^ b.StructuralHash()
	if x == 0 {
		return 0
	}
	return float32(bits.OnesCount64(x)) / 64
}

// SignatureDistance returns the normalized L1 distance between the
// histogram components of a and b in [0,1].
func SignatureDistance(a, b Fingerprint) float32 {
	var sum int
	for i := 8; i < Size; i++ {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float32(sum) / float32(255*histogramBuckets)
}

// Distance combines hash and histogram distance into a single score in
// [0,1]. Identical fingerprints score 0; the structural hash dominates so
// that byte-for-byte equal sprites are always nearest to each other.
func Distance(a, b Fingerprint) float32 {
	if a == b {
		return 0
	}
	return 0.6*HashDistance(a, b) + 0.4*SignatureDistance(a, b)
}
