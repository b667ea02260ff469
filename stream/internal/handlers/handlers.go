// Package handlers implements the stream service HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/careatlas-systems/pulse/common/geo"
	"github.com/careatlas-systems/pulse/common/httputil"
	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/common/messaging"
	"github.com/careatlas-systems/pulse/stream/internal/model"
	"github.com/careatlas-systems/pulse/stream/internal/notify"
	"github.com/careatlas-systems/pulse/stream/internal/sse"
)

// Handler holds the stream service dependencies.
type Handler struct {
	manager  *sse.Manager
	notifier *notify.Notifier
	client   messaging.Client
	logger   *slog.Logger
}

// New creates a Handler.
func New(manager *sse.Manager, notifier *notify.Notifier, client messaging.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, notifier: notifier, client: client, logger: logger}
}

// Stream dispatches /stream/facilities/ requests: the "region" suffix opens
// a region-scoped stream, anything else is a facility ID.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	suffix := strings.TrimPrefix(r.URL.Path, "/stream/facilities/")
	suffix = strings.Trim(suffix, "/")

	var err error
	if suffix == "region" {
		err = h.streamRegion(w, r)
	} else {
		err = h.manager.ServeFacility(w, r, suffix)
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, sse.ErrGeoFilterInvalid), errors.Is(err, sse.ErrBadRequest):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sse.ErrShuttingDown):
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, sse.ErrStreamUnsupported):
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		// Stream already started; the connection is gone either way.
		h.logger.Debug("stream ended", logging.Error(err))
	}
}

// streamRegion parses lat/lon/radius query parameters and opens a
// region-scoped stream. Radius defaults to 50km.
func (h *Handler) streamRegion(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return errInvalidParam("lat", q.Get("lat"))
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return errInvalidParam("lon", q.Get("lon"))
	}

	radius := sse.DefaultRegionRadiusKm
	if raw := q.Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return errInvalidParam("radius", raw)
		}
	}

	return h.manager.ServeRegion(w, r, sse.RegionFilter{
		Center:   geo.Point{Latitude: lat, Longitude: lon},
		RadiusKm: radius,
	})
}

// changeRequest is the payload the write path sends after a state mutation.
type changeRequest struct {
	FacilityID    string          `json:"facility_id"`
	EventType     model.EventType `json:"event_type"`
	ChangedFields map[string]any  `json:"changed_fields"`
	Location      *geo.Point      `json:"location,omitempty"`

	// PreviousFields, when present, switches the endpoint into diff mode:
	// events are derived by comparing previous to changed fields instead
	// of trusting the caller's event type.
	PreviousFields map[string]any `json:"previous_fields,omitempty"`
}

// NotifyChange handles POST /internal/v1/changes from the write path.
// The caller's write has already committed; a publish failure is reported
// with 502 so the write path can log it, never retried here.
func (h *Handler) NotifyChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if req.PreviousFields != nil {
		events, err := h.notifier.NotifySnapshot(r.Context(), req.FacilityID, req.PreviousFields, req.ChangedFields, req.Location)
		switch {
		case err != nil && events == nil:
			// Rejected before anything was published.
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			httputil.WriteError(w, http.StatusBadGateway, "event transport unavailable: "+err.Error())
		default:
			httputil.WriteJSON(w, http.StatusAccepted, map[string]any{"events": events})
		}
		return
	}

	ev, err := h.notifier.NotifyChange(r.Context(), req.FacilityID, req.EventType, req.ChangedFields, req.Location)
	if err != nil {
		if ev == nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Event was valid but the transport rejected it.
		httputil.WriteError(w, http.StatusBadGateway, "event transport unavailable: "+err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{"event": ev})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := messaging.CheckClientHealth(r.Context(), h.client)
	body := map[string]any{
		"status":      "ok",
		"messaging":   status,
		"connections": h.manager.ConnectionCount(),
	}
	if !status.Connected {
		// Degraded, not down: streams stay open and gap until the
		// transport recovers.
		body["status"] = "degraded"
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

func errInvalidParam(name, value string) error {
	return &invalidParamError{name: name, value: value}
}

type invalidParamError struct {
	name  string
	value string
}

func (e *invalidParamError) Error() string {
	return "invalid " + e.name + " parameter: " + strconv.Quote(e.value)
}

func (e *invalidParamError) Is(target error) bool {
	return target == sse.ErrGeoFilterInvalid
}
