// Package cache provides the Redis-backed read cache shared by the query
// service (read-through population) and the stream service (eager
// invalidation).
//
// Redis key structure:
//
//	facility:{id}   - serialized facility snapshot (eagerly invalidated)
//	search:{hash}   - serialized search results (TTL expiry only)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for the two cache categories.
const (
	facilityKeyPrefix = "facility:"
	searchKeyPrefix   = "search:"
)

// notFoundMarker is stored under an entity key to cache a negative lookup.
// Kept deliberately short-lived so a transient not-found never lingers.
const notFoundMarker = "\x00pulse:not-found"

// ErrNegativeEntry is returned by Get when the key holds a cached
// not-found marker.
var ErrNegativeEntry = errors.New("cache: negative entry")

// Cache wraps a Redis client with the pulse key conventions.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis at redisURL and verifies the connection.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{rdb: client}, nil
}

// NewFromClient wraps an existing Redis client. Used by tests with miniredis.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// FacilityKey returns the cache key for a facility snapshot.
func FacilityKey(facilityID string) string {
	return facilityKeyPrefix + facilityID
}

// SearchKey returns the cache key for a search-result entry.
func SearchKey(hash string) string {
	return searchKeyPrefix + hash
}

// Get returns the cached value for key. The second return value reports
// whether the key was present. A cached negative entry is reported as
// present with ErrNegativeEntry.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if string(val) == notFoundMarker {
		return nil, true, ErrNegativeEntry
	}
	return val, true, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// SetNegative caches a not-found result under key for a short TTL.
func (c *Cache) SetNegative(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, notFoundMarker, ttl).Err(); err != nil {
		return fmt.Errorf("cache set negative %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// InvalidateFacility removes the entity cache entry for facilityID.
// Search entries are intentionally untouched: they expire by TTL only.
func (c *Cache) InvalidateFacility(ctx context.Context, facilityID string) error {
	return c.Delete(ctx, FacilityKey(facilityID))
}

// PurgePattern removes every key matching pattern (Redis glob syntax) and
// returns the number of keys removed. Operator path only: it SCANs the
// keyspace in batches and is far too heavy for the steady-state flow.
func (c *Cache) PurgePattern(ctx context.Context, pattern string) (int, error) {
	var purged int
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return purged, fmt.Errorf("purge %s: %w", iter.Val(), err)
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return purged, nil
}

// TTL returns the remaining time-to-live of key, for observability endpoints.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}

// Ping verifies the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
