// Package sse implements the streaming connection manager: long-lived
// Server-Sent-Events connections subscribed to a single facility or to all
// facilities within a geographic radius.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/careatlas-systems/pulse/common/geo"
	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/common/messaging"
	"github.com/careatlas-systems/pulse/stream/internal/bus"
	"github.com/careatlas-systems/pulse/stream/internal/metrics"
	"github.com/careatlas-systems/pulse/stream/internal/model"
)

// DefaultHeartbeatInterval keeps proxies and load balancers from timing out
// idle connections.
const DefaultHeartbeatInterval = 30 * time.Second

// DefaultRegionRadiusKm applies when a region subscriber omits the radius.
const DefaultRegionRadiusKm = 50.0

// Config tunes the connection manager.
type Config struct {
	// HeartbeatInterval between keep-alive events. Zero means default.
	HeartbeatInterval time.Duration

	// QueueSize bounds each connection's event queue. Zero means the bus
	// default. A connection whose queue overflows is force-closed.
	QueueSize int
}

// Manager owns every live streaming connection. Each connection runs one
// goroutine that drains its own bus subscription into the HTTP response;
// connections never share queues, so one slow client cannot delay another.
type Manager struct {
	bus    *bus.Bus
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	conns    map[*connection]struct{}
	shutdown chan struct{}
	stopped  bool
}

// NewManager creates a connection manager publishing through b.
func NewManager(b *bus.Bus, cfg Config, logger *slog.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:      b,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "sse")),
		conns:    make(map[*connection]struct{}),
		shutdown: make(chan struct{}),
	}
}

// ServeFacility streams every event on one facility's channel, verbatim.
func (m *Manager) ServeFacility(w http.ResponseWriter, r *http.Request, facilityID string) error {
	if facilityID == "" {
		return fmt.Errorf("%w: empty facility id", ErrBadRequest)
	}
	return m.serve(w, r, messaging.FacilityEventSubject(facilityID), "facility", nil)
}

// RegionFilter scopes a stream to facilities within RadiusKm of Center.
type RegionFilter struct {
	Center   geo.Point
	RadiusKm float64
}

// Validate rejects malformed filters before a connection is opened.
func (f RegionFilter) Validate() error {
	if err := f.Center.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrGeoFilterInvalid, err)
	}
	if f.RadiusKm <= 0 {
		return fmt.Errorf("%w: radius %v must be positive", ErrGeoFilterInvalid, f.RadiusKm)
	}
	return nil
}

// allows applies the geo filter to one event. Events without a location are
// never forwarded on region streams: fail closed, or every location-less
// event in the system would flood every regional subscriber.
func (f RegionFilter) allows(ev *model.ChangeEvent) bool {
	if ev.Location == nil {
		return false
	}
	// Boundary inclusive: distance == radius matches.
	return geo.WithinRadius(f.Center, *ev.Location, f.RadiusKm)
}

// ServeRegion streams events from the catch-all channel whose location lies
// within the filter's radius.
func (m *Manager) ServeRegion(w http.ResponseWriter, r *http.Request, filter RegionFilter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	return m.serve(w, r, messaging.SubjectFacilityEventsAll, "region", &filter)
}

// ConnectionCount returns the number of currently open connections.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Shutdown broadcasts a final notice to every open connection, then waits
// for them to close or for ctx to expire. The notice is best-effort: it lets
// well-behaved clients back off their reconnect instead of hammering a
// server that is going away.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.shutdown)
	remaining := len(m.conns)
	m.mu.Unlock()

	m.logger.Info("closing streaming connections", slog.Int("connections", remaining))

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.ConnectionCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("sse shutdown: %d connections still open: %w", m.ConnectionCount(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) register(c *connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrShuttingDown
	}
	m.conns[c] = struct{}{}
	metrics.ActiveConnections.WithLabelValues(c.mode).Inc()
	return nil
}

func (m *Manager) unregister(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[c]; ok {
		delete(m.conns, c)
		metrics.ActiveConnections.WithLabelValues(c.mode).Dec()
	}
}

// serve runs the connection lifecycle:
// CONNECTING -> STREAMING -> CLOSING -> CLOSED.
func (m *Manager) serve(w http.ResponseWriter, r *http.Request, channel, mode string, filter *RegionFilter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("%w: response writer does not support streaming", ErrStreamUnsupported)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{
		mode:    mode,
		channel: channel,
		started: time.Now(),
	}
	c.setState(StateConnecting)

	// The subscription buffer is the connection's bounded event queue.
	// Cancelling ctx releases it from the bus, so a disconnected client
	// leaves nothing behind.
	sub, err := m.bus.Subscribe(ctx, channel,
		bus.WithQueueSize(m.cfg.QueueSize),
		bus.WithOverflowPolicy(bus.CloseOnOverflow),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	if err := m.register(c); err != nil {
		return err
	}
	defer func() {
		c.setState(StateClosed)
		m.unregister(c)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c.setState(StateStreaming)
	log := m.logger.With(
		slog.String("mode", mode),
		logging.Channel(channel),
	)
	log.Debug("stream opened")

	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client went away.
			c.setState(StateClosing)
			log.Debug("stream closed by client")
			return nil

		case <-m.shutdown:
			c.setState(StateClosing)
			// Best-effort notice; the client is free to have vanished.
			_ = writeEvent(w, flusher, model.NewShutdownNotice())
			log.Debug("stream closed by server shutdown")
			return nil

		case <-heartbeat.C:
			if err := writeEvent(w, flusher, model.NewHeartbeat()); err != nil {
				c.setState(StateClosing)
				log.Debug("stream closed on heartbeat write", logging.Error(err))
				return nil
			}
			metrics.HeartbeatsSent.Inc()

		case ev, open := <-sub.Events():
			if !open {
				c.setState(StateClosing)
				if sub.Err() != nil {
					metrics.SlowConsumerDisconnects.Inc()
					log.Warn("stream force-closed", logging.Error(sub.Err()))
				}
				return sub.Err()
			}
			if filter != nil && !filter.allows(ev) {
				metrics.EventsFiltered.Inc()
				continue
			}
			if err := writeEvent(w, flusher, ev); err != nil {
				c.setState(StateClosing)
				log.Debug("stream closed on write", logging.Error(err))
				return nil
			}
			metrics.EventsDelivered.WithLabelValues(mode).Inc()
		}
	}
}

// writeEvent emits one SSE frame: the event name is the change event type,
// the data line its JSON encoding.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev *model.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
