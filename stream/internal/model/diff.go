package model

import (
	"reflect"
	"sort"

	"github.com/careatlas-systems/pulse/common/geo"
)

// monitoredFields maps the facility snapshot fields that trigger events to
// the event type announcing them. Unmonitored fields never produce events.
var monitoredFields = map[string]EventType{
	"capacity_status":       EventCapacityUpdate,
	"avg_wait_minutes":      EventWaitTimeUpdate,
	"urgent_care_available": EventUrgentCareUpdate,
	"services":              EventServiceAvailabilityUpdate,
	"service_health":        EventServiceHealthUpdate,
	"ward_capacity":         EventWardCapacityUpdate,
}

// FieldChange records one monitored field whose value differs between two
// facility snapshots.
type FieldChange struct {
	Field string
	Value any
	Type  EventType
}

// DiffSnapshots compares two facility snapshots and returns the monitored
// fields whose values changed, in deterministic field order. A field absent
// from next is not a change; the write path sends full values for the
// fields it touched.
func DiffSnapshots(prev, next map[string]any) []FieldChange {
	fields := make([]string, 0, len(next))
	for f := range next {
		if _, monitored := monitoredFields[f]; monitored {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	var changes []FieldChange
	for _, f := range fields {
		if reflect.DeepEqual(prev[f], next[f]) {
			continue
		}
		changes = append(changes, FieldChange{
			Field: f,
			Value: next[f],
			Type:  monitoredFields[f],
		})
	}
	return changes
}

// EventsForChanges groups field changes by event type and builds one event
// per type, each carrying the changed fields it announces.
func EventsForChanges(facilityID string, loc *geo.Point, changes []FieldChange) ([]*ChangeEvent, error) {
	byType := make(map[EventType]map[string]any)
	order := make([]EventType, 0, len(changes))
	for _, ch := range changes {
		if _, seen := byType[ch.Type]; !seen {
			byType[ch.Type] = make(map[string]any)
			order = append(order, ch.Type)
		}
		byType[ch.Type][ch.Field] = ch.Value
	}

	events := make([]*ChangeEvent, 0, len(order))
	for _, t := range order {
		ev, err := NewChangeEvent(facilityID, t, byType[t], loc)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
