package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[string](DefaultConfig())
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "alpha")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](Config{MaxSize: 2, EnableStats: true})
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRU_TTL(t *testing.T) {
	c := NewLRU[int](Config{MaxSize: 10})
	defer c.Close()

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.SetWithTTL("short", 1, time.Second)
	c.SetWithTTL("forever", 2, 0)

	now = now.Add(2 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)

	c.Cleanup(time.Second)
	assert.Equal(t, 0, c.Size())
}

func TestLRU_BackgroundCleanupStops(t *testing.T) {
	c := NewLRU[int](Config{MaxSize: 10, CleanupPeriod: time.Millisecond})
	c.Set("a", 1)
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Size())
}
