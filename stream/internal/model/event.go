// Package model defines the change events carried by the facility event bus.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careatlas-systems/pulse/common/geo"
)

// EventType identifies which monitored aspect of a facility changed.
type EventType string

// Known event types. Consumers must tolerate types they do not recognize;
// changed_fields is always a partial patch, never a full snapshot.
const (
	EventCapacityUpdate            EventType = "capacity_update"
	EventWaitTimeUpdate            EventType = "wait_time_update"
	EventUrgentCareUpdate          EventType = "urgent_care_update"
	EventServiceAvailabilityUpdate EventType = "service_availability_update"
	EventServiceHealthUpdate       EventType = "service_health_update"
	EventWardCapacityUpdate        EventType = "ward_capacity_update"

	// EventHeartbeat keeps idle streaming connections alive. It carries no
	// payload beyond its timestamp and never reaches the cache invalidator.
	EventHeartbeat EventType = "heartbeat"

	// EventServerShutdown is the best-effort final notice broadcast before
	// the stream service closes connections, letting clients distinguish a
	// deliberate shutdown from a network failure.
	EventServerShutdown EventType = "server_shutdown"
)

// changeEventTypes lists the types emitted by the write path.
var changeEventTypes = map[EventType]struct{}{
	EventCapacityUpdate:            {},
	EventWaitTimeUpdate:            {},
	EventUrgentCareUpdate:          {},
	EventServiceAvailabilityUpdate: {},
	EventServiceHealthUpdate:       {},
	EventWardCapacityUpdate:        {},
}

// Valid reports whether t is a type the write path may publish.
func (t EventType) Valid() bool {
	_, ok := changeEventTypes[t]
	return ok
}

// Control reports whether t is a transport-level event (heartbeat or
// shutdown notice) rather than a facility state change.
func (t EventType) Control() bool {
	return t == EventHeartbeat || t == EventServerShutdown
}

// ChangeEvent is one immutable facility state change. Events exist only on
// the pub/sub transport: there is no replay log, and disconnected clients
// reconcile through the cached read path instead.
type ChangeEvent struct {
	// ID is time-ordered and collision-resistant (UUIDv7).
	ID string `json:"id"`

	FacilityID string    `json:"facility_id"`
	Type       EventType `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`

	// Location is the facility's coordinates when known. Region-scoped
	// subscribers never receive events without one.
	Location *geo.Point `json:"location,omitempty"`

	// ChangedFields maps monitored field names to their new values.
	// It is a partial patch of the facility state.
	ChangedFields map[string]any `json:"changed_fields,omitempty"`
}

// NewChangeEvent builds an event for a facility state change.
func NewChangeEvent(facilityID string, t EventType, changed map[string]any, loc *geo.Point) (*ChangeEvent, error) {
	if facilityID == "" {
		return nil, fmt.Errorf("facility id is required")
	}
	if !t.Valid() {
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return nil, fmt.Errorf("event location: %w", err)
		}
	}
	return &ChangeEvent{
		ID:            newEventID(),
		FacilityID:    facilityID,
		Type:          t,
		Timestamp:     time.Now().UTC(),
		Location:      loc,
		ChangedFields: changed,
	}, nil
}

// NewHeartbeat builds a keep-alive event.
func NewHeartbeat() *ChangeEvent {
	return &ChangeEvent{
		ID:        newEventID(),
		Type:      EventHeartbeat,
		Timestamp: time.Now().UTC(),
	}
}

// NewShutdownNotice builds the final event broadcast before server shutdown.
func NewShutdownNotice() *ChangeEvent {
	return &ChangeEvent{
		ID:        newEventID(),
		Type:      EventServerShutdown,
		Timestamp: time.Now().UTC(),
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		// and keep publishing.
		return uuid.NewString()
	}
	return id.String()
}
