package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careatlas-systems/pulse/common/geo"
	"github.com/careatlas-systems/pulse/common/messaging"
	"github.com/careatlas-systems/pulse/common/messaging/memory"
	"github.com/careatlas-systems/pulse/stream/internal/bus"
	"github.com/careatlas-systems/pulse/stream/internal/model"
)

func newNotifier(t *testing.T) (*Notifier, *bus.Subscription) {
	t.Helper()

	client := memory.NewClient()
	t.Cleanup(func() { client.Close() })
	b := bus.New(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sub, err := b.Subscribe(ctx, messaging.SubjectFacilityEventsAll)
	require.NoError(t, err)

	return New(b, nil), sub
}

func recv(t *testing.T, sub *bus.Subscription) *model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestNotifyChange(t *testing.T) {
	n, sub := newNotifier(t)

	loc := &geo.Point{Latitude: 6.5, Longitude: 3.4}
	ev, err := n.NotifyChange(context.Background(), "fac-1", model.EventWaitTimeUpdate,
		map[string]any{"avg_wait_minutes": 75}, loc)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.NotEmpty(t, ev.ID)

	got := recv(t, sub)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, model.EventWaitTimeUpdate, got.Type)
}

func TestNotifyChangeRejectsInvalid(t *testing.T) {
	n, _ := newNotifier(t)

	ev, err := n.NotifyChange(context.Background(), "", model.EventCapacityUpdate, nil, nil)
	assert.Error(t, err)
	assert.Nil(t, ev)

	ev, err = n.NotifyChange(context.Background(), "fac-1", model.EventHeartbeat, nil, nil)
	assert.Error(t, err)
	assert.Nil(t, ev)
}

func TestNotifySnapshotPublishesGroupedEvents(t *testing.T) {
	n, sub := newNotifier(t)

	prev := map[string]any{
		"capacity_status":  "moderate",
		"avg_wait_minutes": 30,
		"services":         []any{"emergency"},
	}
	next := map[string]any{
		"capacity_status":  "critical",
		"avg_wait_minutes": 90,
		"services":         []any{"emergency"},
	}

	events, err := n.NotifySnapshot(context.Background(), "fac-1", prev, next, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := recv(t, sub)
	assert.Equal(t, model.EventWaitTimeUpdate, first.Type)
	assert.Equal(t, map[string]any{"avg_wait_minutes": float64(90)}, first.ChangedFields)

	second := recv(t, sub)
	assert.Equal(t, model.EventCapacityUpdate, second.Type)
	assert.Equal(t, map[string]any{"capacity_status": "critical"}, second.ChangedFields)
}

func TestNotifySnapshotNoChanges(t *testing.T) {
	n, _ := newNotifier(t)

	snap := map[string]any{"capacity_status": "low"}
	events, err := n.NotifySnapshot(context.Background(), "fac-1", snap, snap, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestNotifyChangeReturnsEventOnPublishFailure(t *testing.T) {
	client := memory.NewClient()
	b := bus.New(client, nil)
	n := New(b, nil)

	// A closed transport rejects the publish, but the event was built:
	// the caller's write already committed and must not be failed.
	require.NoError(t, client.Close())

	ev, err := n.NotifyChange(context.Background(), "fac-1", model.EventCapacityUpdate,
		map[string]any{"capacity_status": "low"}, nil)
	assert.Error(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "fac-1", ev.FacilityID)
}
