package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	type payload struct {
		Offset uint64  `json:"offset"`
		Score  float32 `json:"score"`
	}

	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)

		in := payload{Offset: 0x10C0, Score: 0.75}
		b, err := c.Marshal(in)
		require.NoError(t, err)

		var out payload
		require.NoError(t, c.Unmarshal(b, &out))
		assert.Equal(t, in, out)
	}
}
