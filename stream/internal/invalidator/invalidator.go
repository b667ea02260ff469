// Package invalidator keeps the entity cache coherent with the event
// stream. It is a single standing subscriber on the catch-all channel that
// purges exactly one cache key per event.
//
// Search-result caches are deliberately never touched here. They aggregate
// many facilities: purging them on every single-facility change would churn
// the cache in proportion to write volume, and the clients they serve are
// precisely the ones not streaming, for whom staleness bounded by the search
// TTL is the accepted contract.
package invalidator

import (
	"context"
	"log/slog"

	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/common/messaging"
	"github.com/careatlas-systems/pulse/stream/internal/bus"
	"github.com/careatlas-systems/pulse/stream/internal/metrics"
)

// EntityCache is the slice of the cache the invalidator needs.
type EntityCache interface {
	InvalidateFacility(ctx context.Context, facilityID string) error
}

// Invalidator purges entity cache entries as change events arrive.
type Invalidator struct {
	bus    *bus.Bus
	cache  EntityCache
	logger *slog.Logger
}

// New creates an Invalidator reading from b and purging through c.
func New(b *bus.Bus, c EntityCache, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		bus:    b,
		cache:  c,
		logger: logger.With(slog.String("component", "invalidator")),
	}
}

// Run subscribes to the catch-all channel and processes events until ctx is
// cancelled. Every failure is logged and swallowed: invalidation is
// best-effort, and a missed purge degrades to TTL staleness rather than an
// error anywhere else in the system.
func (inv *Invalidator) Run(ctx context.Context) error {
	// DropNewest: losing one invalidation under overload is bounded
	// staleness; losing the subscription would stop invalidation entirely.
	sub, err := inv.bus.Subscribe(ctx, messaging.SubjectFacilityEventsAll,
		bus.WithQueueSize(256),
		bus.WithOverflowPolicy(bus.DropNewest),
	)
	if err != nil {
		return err
	}

	inv.logger.Info("cache invalidator started",
		logging.Channel(messaging.SubjectFacilityEventsAll))

	for ev := range sub.Events() {
		if ev.Type.Control() || ev.FacilityID == "" {
			continue
		}
		if err := inv.cache.InvalidateFacility(ctx, ev.FacilityID); err != nil {
			metrics.InvalidationErrors.Inc()
			inv.logger.Warn("entity cache purge failed",
				logging.FacilityID(ev.FacilityID),
				logging.EventID(ev.ID),
				logging.Error(err))
			continue
		}
		metrics.Invalidations.Inc()
		inv.logger.Debug("entity cache purged",
			logging.FacilityID(ev.FacilityID),
			logging.EventID(ev.ID))
	}

	inv.logger.Info("cache invalidator stopped")
	return nil
}
