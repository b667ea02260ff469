package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careatlas-systems/pulse/common/geo"
)

func TestNewChangeEvent(t *testing.T) {
	loc := &geo.Point{Latitude: 6.52, Longitude: 3.37}
	ev, err := NewChangeEvent("fac-1", EventCapacityUpdate, map[string]any{"capacity_status": "high"}, loc)
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "fac-1", ev.FacilityID)
	assert.Equal(t, EventCapacityUpdate, ev.Type)
	assert.WithinDuration(t, time.Now(), ev.Timestamp, 2*time.Second)
	assert.Equal(t, loc, ev.Location)
	assert.Equal(t, "high", ev.ChangedFields["capacity_status"])
}

func TestNewChangeEvent_Rejections(t *testing.T) {
	_, err := NewChangeEvent("", EventCapacityUpdate, nil, nil)
	assert.Error(t, err, "missing facility id")

	_, err = NewChangeEvent("fac-1", EventType("made_up"), nil, nil)
	assert.Error(t, err, "unknown event type")

	_, err = NewChangeEvent("fac-1", EventHeartbeat, nil, nil)
	assert.Error(t, err, "control events are not write-path types")

	bad := &geo.Point{Latitude: 120, Longitude: 0}
	_, err = NewChangeEvent("fac-1", EventCapacityUpdate, nil, bad)
	assert.Error(t, err, "invalid location")
}

func TestEventIDsAreUniqueAndOrdered(t *testing.T) {
	a, err := NewChangeEvent("fac-1", EventCapacityUpdate, nil, nil)
	require.NoError(t, err)
	b, err := NewChangeEvent("fac-1", EventCapacityUpdate, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	// UUIDv7 is time-ordered, so IDs issued later sort later.
	assert.Less(t, a.ID, b.ID)
}

func TestEventTypeValid(t *testing.T) {
	for _, typ := range []EventType{
		EventCapacityUpdate, EventWaitTimeUpdate, EventUrgentCareUpdate,
		EventServiceAvailabilityUpdate, EventServiceHealthUpdate, EventWardCapacityUpdate,
	} {
		assert.True(t, typ.Valid(), string(typ))
		assert.False(t, typ.Control(), string(typ))
	}
	for _, typ := range []EventType{EventHeartbeat, EventServerShutdown} {
		assert.False(t, typ.Valid(), string(typ))
		assert.True(t, typ.Control(), string(typ))
	}
	assert.False(t, EventType("bogus").Valid())
	assert.False(t, EventType("bogus").Control())
}

func TestControlEventConstructors(t *testing.T) {
	hb := NewHeartbeat()
	assert.Equal(t, EventHeartbeat, hb.Type)
	assert.Empty(t, hb.FacilityID)
	assert.NotEmpty(t, hb.ID)

	sd := NewShutdownNotice()
	assert.Equal(t, EventServerShutdown, sd.Type)
	assert.Empty(t, sd.FacilityID)
}

func TestChangeEventJSON(t *testing.T) {
	ev, err := NewChangeEvent("fac-1", EventWaitTimeUpdate, map[string]any{"avg_wait_minutes": 45}, nil)
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "wait_time_update", decoded["event_type"])
	assert.Equal(t, "fac-1", decoded["facility_id"])
	// Absent location must be omitted, not null.
	assert.NotContains(t, decoded, "location")
}
