// Package service implements the tiered read path: cache, then search
// index, then source-of-truth store, each tier a fallback for the previous
// one, populating the cache on the way back up.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/careatlas-systems/pulse/common/cache"
	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/common/retry"
	"github.com/careatlas-systems/pulse/query/internal/index"
	"github.com/careatlas-systems/pulse/query/internal/metrics"
	"github.com/careatlas-systems/pulse/query/internal/models"
	"github.com/careatlas-systems/pulse/query/internal/store"
)

// ErrNotFound propagates to the API boundary as 404.
var ErrNotFound = errors.New("query: facility not found")

// ErrInvalidQuery marks requests no tier could answer; it propagates
// immediately, without fallback.
var ErrInvalidQuery = errors.New("query: invalid search parameters")

// CacheStatus reports whether a read was answered from cache.
type CacheStatus string

const (
	CacheHit  CacheStatus = "hit"
	CacheMiss CacheStatus = "miss"
)

// Default TTLs. Entity entries are also eagerly invalidated by the stream
// service, so their TTL is only a backstop; search entries expire by TTL
// alone and this bound is the documented staleness window for
// non-streaming clients.
const (
	DefaultFacilityTTL = 5 * time.Minute
	DefaultSearchTTL   = 3 * time.Minute
	DefaultNegativeTTL = 15 * time.Second
)

// FacilityStore is the source-of-truth tier.
type FacilityStore interface {
	GetFacility(ctx context.Context, id string) (*models.Facility, error)
	SearchFacilities(ctx context.Context, params models.SearchParams) (*models.SearchResult, error)
}

// SearchIndex is the search-index tier.
type SearchIndex interface {
	SearchFacilities(ctx context.Context, params models.SearchParams) (*models.SearchResult, error)
}

// TTLConfig overrides the default cache lifetimes.
type TTLConfig struct {
	Facility time.Duration
	Search   time.Duration
	Negative time.Duration
}

// QueryService is the read path used by the API handlers.
type QueryService struct {
	cache  *cache.Cache
	index  SearchIndex
	store  FacilityStore
	ttl    TTLConfig
	logger *slog.Logger

	// tierRetry bounds in-tier retries on transient store failures before
	// giving up on the request.
	tierRetry retry.Policy
}

// New creates a QueryService. index may be nil, in which case every search
// goes straight to the store (permanent degraded mode, used in tests and
// minimal deployments).
func New(c *cache.Cache, idx SearchIndex, st FacilityStore, ttl TTLConfig, logger *slog.Logger) *QueryService {
	if ttl.Facility <= 0 {
		ttl.Facility = DefaultFacilityTTL
	}
	if ttl.Search <= 0 {
		ttl.Search = DefaultSearchTTL
	}
	if ttl.Negative <= 0 {
		ttl.Negative = DefaultNegativeTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		cache:  c,
		index:  idx,
		store:  st,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "query")),
		tierRetry: retry.Policy{
			MaxAttempts:   3,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      500 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	}
}

// GetFacility reads one facility through the tiered path: cache, then
// store. The search index holds a projection, not the truth, so it is not
// consulted for by-ID reads.
func (s *QueryService) GetFacility(ctx context.Context, id string) (*models.Facility, CacheStatus, error) {
	timer := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("get_facility").Observe(time.Since(timer).Seconds())
	}()

	if id == "" {
		return nil, CacheMiss, ErrInvalidQuery
	}

	key := cache.FacilityKey(id)
	val, found, err := s.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrNegativeEntry):
		metrics.CacheLookups.WithLabelValues("facility", "hit").Inc()
		return nil, CacheHit, ErrNotFound
	case err != nil:
		// Cache unreachable is a degraded read, never a failed one.
		metrics.TierFallbacks.WithLabelValues("cache", "store").Inc()
		s.logger.Warn("cache unavailable, reading store directly",
			logging.CacheKey(key), logging.Error(err))
	case found:
		var f models.Facility
		if err := json.Unmarshal(val, &f); err == nil {
			metrics.CacheLookups.WithLabelValues("facility", "hit").Inc()
			return &f, CacheHit, nil
		}
		// Undecodable entry: treat as a miss and overwrite below.
		s.logger.Warn("discarding corrupt cache entry", logging.CacheKey(key))
	}
	metrics.CacheLookups.WithLabelValues("facility", "miss").Inc()

	var f *models.Facility
	err = retry.Do(ctx, s.tierRetry, func(ctx context.Context) error {
		var storeErr error
		f, storeErr = s.store.GetFacility(ctx, id)
		if errors.Is(storeErr, store.ErrNotFound) {
			// Definitive answer, not a transient failure.
			return nil
		}
		return storeErr
	}, nil)
	if err != nil {
		return nil, CacheMiss, err
	}

	if f == nil {
		// Cache the negative briefly so a hot missing ID cannot hammer
		// the store, but never long enough to mask a late write.
		if err := s.cache.SetNegative(ctx, key, s.ttl.Negative); err != nil {
			s.logger.Warn("negative cache write failed", logging.CacheKey(key), logging.Error(err))
		}
		return nil, CacheMiss, ErrNotFound
	}

	if data, err := json.Marshal(f); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl.Facility); err != nil {
			s.logger.Warn("cache write failed", logging.CacheKey(key), logging.Error(err))
		}
	}
	return f, CacheMiss, nil
}

// Search answers a facility search through cache, index, then store.
func (s *QueryService) Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, CacheStatus, error) {
	timer := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("search").Observe(time.Since(timer).Seconds())
	}()

	if err := params.Validate(); err != nil {
		return nil, CacheMiss, errors.Join(ErrInvalidQuery, err)
	}
	params = params.Normalize()

	key := cache.SearchKey(params.CacheHash())
	val, found, err := s.cache.Get(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrNegativeEntry) {
		metrics.TierFallbacks.WithLabelValues("cache", "index").Inc()
		s.logger.Warn("cache unavailable, searching directly",
			logging.CacheKey(key), logging.Error(err))
	} else if found {
		var res models.SearchResult
		if err := json.Unmarshal(val, &res); err == nil {
			metrics.CacheLookups.WithLabelValues("search", "hit").Inc()
			return &res, CacheHit, nil
		}
		s.logger.Warn("discarding corrupt cache entry", logging.CacheKey(key))
	}
	metrics.CacheLookups.WithLabelValues("search", "miss").Inc()

	res, err := s.searchTiers(ctx, params)
	if err != nil {
		return nil, CacheMiss, err
	}

	if data, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl.Search); err != nil {
			s.logger.Warn("cache write failed", logging.CacheKey(key), logging.Error(err))
		}
	}
	return res, CacheMiss, nil
}

// searchTiers runs the index with store fallback.
func (s *QueryService) searchTiers(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	if s.index != nil {
		res, err := s.index.SearchFacilities(ctx, params)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, index.ErrBadQuery) {
			// Fatal: fallback would fail identically.
			return nil, errors.Join(ErrInvalidQuery, err)
		}
		metrics.TierFallbacks.WithLabelValues("index", "store").Inc()
		s.logger.Warn("search index unavailable, falling back to store",
			logging.Tier("store"), logging.Error(err))
	}

	var res *models.SearchResult
	err := retry.Do(ctx, s.tierRetry, func(ctx context.Context) error {
		var storeErr error
		res, storeErr = s.store.SearchFacilities(ctx, params)
		return storeErr
	}, nil)
	if err != nil {
		return nil, err
	}
	if s.index != nil {
		res.Degraded = true
	}
	return res, nil
}

// PurgeCache removes every cache entry matching pattern. Operator-only;
// the steady-state flow never bulk-purges.
func (s *QueryService) PurgeCache(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, errors.Join(ErrInvalidQuery, errors.New("purge pattern is required"))
	}
	purged, err := s.cache.PurgePattern(ctx, pattern)
	if err != nil {
		return purged, err
	}
	metrics.CachePurges.Add(float64(purged))
	s.logger.Info("cache purged",
		slog.String("pattern", pattern),
		slog.Int("keys", purged))
	return purged, nil
}
