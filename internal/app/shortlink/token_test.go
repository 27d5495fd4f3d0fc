package shortlink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipr.local/internal/app/shortlink"
)

func TestNewShortID(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := shortlink.NewShortID()
		require.NoError(t, err)
		assert.Len(t, id, shortlink.ShortIDLength)
		assert.True(t, shortlink.ValidToken(id), id)
		assert.NotContains(t, id, ".")
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestEncodeDecodeID(t *testing.T) {
	for _, id := range []int64{1, 42, 1 << 40} {
		enc := shortlink.EncodeID(id)
		assert.GreaterOrEqual(t, len(enc), 6)
		got, ok := shortlink.DecodeID(enc)
		require.True(t, ok, enc)
		assert.Equal(t, id, got)
	}
	_, ok := shortlink.DecodeID("!!!")
	assert.False(t, ok)
	assert.Empty(t, shortlink.EncodeID(-1))
}
