package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careatlas-systems/pulse/common/geo"
	"github.com/careatlas-systems/pulse/common/messaging/memory"
	"github.com/careatlas-systems/pulse/stream/internal/bus"
	"github.com/careatlas-systems/pulse/stream/internal/model"
)

type testStream struct {
	manager *Manager
	bus     *bus.Bus
	client  *memory.Client
	srv     *httptest.Server
}

// newTestStream starts an HTTP server exposing facility and region streams
// backed by an in-process transport.
func newTestStream(t *testing.T, cfg Config) *testStream {
	t.Helper()

	client := memory.NewClient()
	b := bus.New(client, nil)
	manager := NewManager(b, cfg, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/facility", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.ServeFacility(w, r, r.URL.Query().Get("id")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/region", func(w http.ResponseWriter, r *http.Request) {
		lat, _ := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		lon, _ := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
		radius, _ := strconv.ParseFloat(r.URL.Query().Get("radius"), 64)
		filter := RegionFilter{Center: geo.Point{Latitude: lat, Longitude: lon}, RadiusKm: radius}
		if err := manager.ServeRegion(w, r, filter); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		client.Close()
	})
	return &testStream{manager: manager, bus: b, client: client, srv: srv}
}

// open connects to an SSE endpoint and returns a frame reader.
func (ts *testStream) open(t *testing.T, path string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.srv.URL+path, nil)
	require.NoError(t, err)

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	return bufio.NewReader(resp.Body), cancel
}

// readFrame parses the next "event:"/"data:" SSE frame.
func readFrame(t *testing.T, br *bufio.Reader) (name string, ev model.ChangeEvent) {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err, "reading SSE frame")
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		case line == "":
			if name != "" {
				return name, ev
			}
		}
	}
}

func (ts *testStream) waitConnections(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ts.manager.ConnectionCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func publishChange(t *testing.T, b *bus.Bus, facilityID string, loc *geo.Point) *model.ChangeEvent {
	t.Helper()
	ev, err := model.NewChangeEvent(facilityID, model.EventCapacityUpdate,
		map[string]any{"capacity_status": "high"}, loc)
	require.NoError(t, err)
	require.NoError(t, b.PublishChange(context.Background(), ev))
	return ev
}

func TestFacilityStreamDeliversEvents(t *testing.T) {
	ts := newTestStream(t, Config{})
	br, _ := ts.open(t, "/facility?id=fac-1")
	ts.waitConnections(t, 1)

	want := publishChange(t, ts.bus, "fac-1", nil)

	name, got := readFrame(t, br)
	assert.Equal(t, "capacity_update", name)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, "fac-1", got.FacilityID)
	assert.Equal(t, "high", got.ChangedFields["capacity_status"])
}

func TestFacilityStreamIgnoresOtherFacilities(t *testing.T) {
	ts := newTestStream(t, Config{})
	br, _ := ts.open(t, "/facility?id=fac-1")
	ts.waitConnections(t, 1)

	publishChange(t, ts.bus, "fac-2", nil)
	want := publishChange(t, ts.bus, "fac-1", nil)

	_, got := readFrame(t, br)
	assert.Equal(t, want.ID, got.ID, "fac-2 event must not appear on fac-1 stream")
}

func TestRegionStreamFiltersByDistance(t *testing.T) {
	ts := newTestStream(t, Config{})
	// 50 km around Lagos.
	br, _ := ts.open(t, "/region?lat=6.5244&lon=3.3792&radius=50")
	ts.waitConnections(t, 1)

	inside := &geo.Point{Latitude: 6.6018, Longitude: 3.3515}  // Ikeja, ~17 km
	outside := &geo.Point{Latitude: 9.0765, Longitude: 7.3986} // Abuja, ~536 km

	publishChange(t, ts.bus, "fac-far", outside)
	publishChange(t, ts.bus, "fac-nowhere", nil) // no location: never forwarded
	wantFirst := publishChange(t, ts.bus, "fac-near", inside)
	wantSecond := publishChange(t, ts.bus, "fac-near-2", inside)

	_, got := readFrame(t, br)
	assert.Equal(t, wantFirst.ID, got.ID)
	_, got = readFrame(t, br)
	assert.Equal(t, wantSecond.ID, got.ID)
}

func TestRegionStreamRejectsInvalidFilter(t *testing.T) {
	ts := newTestStream(t, Config{})

	tests := []RegionFilter{
		{Center: geo.Point{Latitude: 120, Longitude: 0}, RadiusKm: 10},
		{Center: geo.Point{Latitude: 0, Longitude: -999}, RadiusKm: 10},
		{Center: geo.Point{Latitude: 6.5, Longitude: 3.4}, RadiusKm: 0},
		{Center: geo.Point{Latitude: 6.5, Longitude: 3.4}, RadiusKm: -5},
	}
	for _, filter := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/region", nil)
		err := ts.manager.ServeRegion(rec, req, filter)
		assert.ErrorIs(t, err, ErrGeoFilterInvalid)
	}
	assert.Equal(t, 0, ts.manager.ConnectionCount(), "rejected filters never open connections")
}

func TestFacilityStreamRejectsEmptyID(t *testing.T) {
	ts := newTestStream(t, Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/facility", nil)
	err := ts.manager.ServeFacility(rec, req, "")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestHeartbeat(t *testing.T) {
	ts := newTestStream(t, Config{HeartbeatInterval: 20 * time.Millisecond})
	br, _ := ts.open(t, "/facility?id=fac-1")
	ts.waitConnections(t, 1)

	name, ev := readFrame(t, br)
	assert.Equal(t, "heartbeat", name)
	assert.Equal(t, model.EventHeartbeat, ev.Type)
	assert.Empty(t, ev.FacilityID)

	// Heartbeats keep coming while the stream is idle.
	name, _ = readFrame(t, br)
	assert.Equal(t, "heartbeat", name)
}

func TestShutdownNotifiesAndDrains(t *testing.T) {
	ts := newTestStream(t, Config{})
	br, _ := ts.open(t, "/facility?id=fac-1")
	ts.waitConnections(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.manager.Shutdown(ctx))
	assert.Equal(t, 0, ts.manager.ConnectionCount())

	name, ev := readFrame(t, br)
	assert.Equal(t, "server_shutdown", name)
	assert.Equal(t, model.EventServerShutdown, ev.Type)

	// Stream ends after the notice.
	_, err := br.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestShutdownRejectsNewConnections(t *testing.T) {
	ts := newTestStream(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ts.manager.Shutdown(ctx))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/facility", nil)
	err := ts.manager.ServeFacility(rec, req, "fac-1")
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestDisconnectReleasesResources(t *testing.T) {
	ts := newTestStream(t, Config{})

	for i := 0; i < 10; i++ {
		br, cancel := ts.open(t, "/facility?id=fac-1")
		ts.waitConnections(t, 1)

		want := publishChange(t, ts.bus, "fac-1", nil)
		_, got := readFrame(t, br)
		require.Equal(t, want.ID, got.ID)

		cancel()
		ts.waitConnections(t, 0)
	}

	require.Eventually(t, func() bool {
		return ts.client.SubscriberCount("facility.events.id.fac-1") == 0
	}, 2*time.Second, 10*time.Millisecond, "connection churn must not leak subscriptions")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}
