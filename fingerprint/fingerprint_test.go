package fingerprint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte{0x12, 0x34, 0x56, 0x78}, 64)

	a := New(data)
	b := New(data)
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
	assert.NotZero(t, a.StructuralHash())
}

func TestNewOrderSensitive(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	reversed := make([]byte, len(data))
	for i, b := range data {
		reversed[len(data)-1-i] = b
	}

	a := New(data)
	b := New(reversed)
	// Same byte histogram, different order: the structural hash must
	// differ even though the signature matches.
	assert.NotEqual(t, a.StructuralHash(), b.StructuralHash())
	assert.Zero(t, SignatureDistance(a, b))
}

func TestDistanceIdenticalIsZero(t *testing.T) {
	fp := New([]byte("compressed sprite data goes here"))
	assert.Zero(t, Distance(fp, fp))
}

func TestDistanceBounds(t *testing.T) {
	a := New(bytes.Repeat([]byte{0x00}, 128))
	b := New(bytes.Repeat([]byte{0xFF}, 128))

	d := Distance(a, b)
	assert.Greater(t, d, float32(0))
	assert.LessOrEqual(t, d, float32(1))
}

func TestIsZero(t *testing.T) {
	var zero Fingerprint
	assert.True(t, zero.IsZero())
	require.False(t, New([]byte{1}).IsZero())
}
