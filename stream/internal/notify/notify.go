// Package notify is the inbound edge for the write path. Business logic
// calls NotifyChange after a successful state mutation; this package only
// transports the changed fields, it never validates their business meaning.
package notify

import (
	"context"
	"log/slog"

	"github.com/careatlas-systems/pulse/common/geo"
	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/stream/internal/bus"
	"github.com/careatlas-systems/pulse/stream/internal/metrics"
	"github.com/careatlas-systems/pulse/stream/internal/model"
)

// Notifier publishes facility change events on behalf of the write path.
type Notifier struct {
	bus    *bus.Bus
	logger *slog.Logger
}

// New creates a Notifier publishing through b.
func New(b *bus.Bus, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{bus: b, logger: logger.With(slog.String("component", "notify"))}
}

// NotifyChange builds and publishes one change event. A publish error is
// returned for the caller to log, but the caller's write has already
// committed: event delivery is a side effect, never a transactional
// requirement, so the error must not be treated as a write failure.
func (n *Notifier) NotifyChange(ctx context.Context, facilityID string, t model.EventType, changed map[string]any, loc *geo.Point) (*model.ChangeEvent, error) {
	ev, err := model.NewChangeEvent(facilityID, t, changed, loc)
	if err != nil {
		return nil, err
	}

	if err := n.bus.PublishChange(ctx, ev); err != nil {
		metrics.PublishErrors.Inc()
		n.logger.Warn("event publish failed; subscribers will see a gap",
			logging.EventID(ev.ID),
			logging.FacilityID(facilityID),
			logging.Error(err))
		return ev, err
	}

	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	n.logger.Debug("change event published",
		logging.EventID(ev.ID),
		logging.FacilityID(facilityID),
		logging.EventType(string(ev.Type)))
	return ev, nil
}

// NotifySnapshot diffs two facility snapshots and publishes one event per
// affected event type, each carrying only the fields that changed. Returns
// the events that were published; an empty slice means nothing monitored
// changed.
func (n *Notifier) NotifySnapshot(ctx context.Context, facilityID string, prev, next map[string]any, loc *geo.Point) ([]*model.ChangeEvent, error) {
	changes := model.DiffSnapshots(prev, next)
	if len(changes) == 0 {
		return nil, nil
	}

	events, err := model.EventsForChanges(facilityID, loc, changes)
	if err != nil {
		return nil, err
	}

	published := make([]*model.ChangeEvent, 0, len(events))
	var lastErr error
	for _, ev := range events {
		if err := n.bus.PublishChange(ctx, ev); err != nil {
			metrics.PublishErrors.Inc()
			n.logger.Warn("event publish failed; subscribers will see a gap",
				logging.EventID(ev.ID),
				logging.FacilityID(facilityID),
				logging.Error(err))
			lastErr = err
			continue
		}
		metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
		published = append(published, ev)
	}
	return published, lastErr
}
