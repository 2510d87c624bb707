package memcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

func TestMemCacheContract(t *testing.T) {
	cache := New()

	require.NoError(t, cache.Set("fh_quote_AAPL", map[string]float64{"price": 225.5}))

	var got map[string]float64
	require.NoError(t, cache.Get("fh_quote_AAPL", time.Minute, &got))
	assert.Equal(t, 225.5, got["price"])

	err := cache.Get("missing", time.Minute, &got)
	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)

	require.NoError(t, cache.Set("fh_quote_MSFT", map[string]float64{"price": 430}))
	removed, err := cache.ClearMatching("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	keys, err := cache.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"fh_quote_MSFT"}, keys)
}
