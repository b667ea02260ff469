package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewFromClient(client)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "facility:fac-1", FacilityKey("fac-1"))
	assert.Equal(t, "search:abc123", SearchKey("abc123"))
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	val, found, err := c.Get(ctx, FacilityKey("fac-1"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	require.NoError(t, c.Set(ctx, FacilityKey("fac-1"), []byte(`{"id":"fac-1"}`), 5*time.Minute))

	val, found, err = c.Get(ctx, FacilityKey("fac-1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":"fac-1"}`, string(val))
}

func TestTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, SearchKey("h1"), []byte("results"), 3*time.Minute))

	ttl, err := c.TTL(ctx, SearchKey("h1"))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, ttl)

	mr.FastForward(3*time.Minute + time.Second)

	_, found, err := c.Get(ctx, SearchKey("h1"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNegativeEntry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetNegative(ctx, FacilityKey("ghost"), 15*time.Second))

	val, found, err := c.Get(ctx, FacilityKey("ghost"))
	assert.True(t, found)
	assert.ErrorIs(t, err, ErrNegativeEntry)
	assert.Nil(t, val)

	mr.FastForward(16 * time.Second)

	_, found, err = c.Get(ctx, FacilityKey("ghost"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, FacilityKey("fac-1"), []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, FacilityKey("fac-1")))

	_, found, err := c.Get(ctx, FacilityKey("fac-1"))
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is fine.
	require.NoError(t, c.Delete(ctx, FacilityKey("missing")))
}

func TestInvalidateFacilityLeavesSearchEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, FacilityKey("fac-1"), []byte("entity"), 5*time.Minute))
	require.NoError(t, c.Set(ctx, SearchKey("h1"), []byte("results"), 3*time.Minute))

	require.NoError(t, c.InvalidateFacility(ctx, "fac-1"))

	_, found, err := c.Get(ctx, FacilityKey("fac-1"))
	require.NoError(t, err)
	assert.False(t, found)

	val, found, err := c.Get(ctx, SearchKey("h1"))
	require.NoError(t, err)
	assert.True(t, found, "search entries expire by TTL only")
	assert.Equal(t, "results", string(val))
}

func TestPurgePattern(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for _, key := range []string{FacilityKey("a"), FacilityKey("b"), SearchKey("h1")} {
		require.NoError(t, c.Set(ctx, key, []byte("v"), time.Minute))
	}

	purged, err := c.PurgePattern(ctx, "facility:*")
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	_, found, err := c.Get(ctx, SearchKey("h1"))
	require.NoError(t, err)
	assert.True(t, found)

	purged, err = c.PurgePattern(ctx, "facility:*")
	require.NoError(t, err)
	assert.Equal(t, 0, purged)
}
