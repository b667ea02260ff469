// Package handlers implements the query service HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/careatlas-systems/pulse/common/httputil"
	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/query/internal/models"
	"github.com/careatlas-systems/pulse/query/internal/service"
)

// Handler holds the query service dependencies.
type Handler struct {
	svc    *service.QueryService
	logger *slog.Logger
}

// New creates a Handler.
func New(svc *service.QueryService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Facilities dispatches /api/v1/facilities/ requests: the "search" suffix
// runs a search, anything else is a facility ID lookup.
func (h *Handler) Facilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	suffix := strings.TrimPrefix(r.URL.Path, "/api/v1/facilities/")
	suffix = strings.Trim(suffix, "/")

	if suffix == "search" {
		h.search(w, r)
		return
	}
	h.getByID(w, r, suffix)
}

func (h *Handler) getByID(w http.ResponseWriter, r *http.Request, id string) {
	facility, status, err := h.svc.GetFacility(r.Context(), id)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	w.Header().Set("X-Cache", string(status))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":  facility,
		"cache": status,
	})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, status, err := h.svc.Search(r.Context(), params)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	w.Header().Set("X-Cache", string(status))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":  result,
		"cache": status,
	})
}

// PurgeCache handles POST /admin/v1/cache/purge. Operator-only bulk
// invalidation; never part of the automatic flow.
func (h *Handler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	purged, err := h.svc.PurgeCache(r.Context(), req.Pattern)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "facility not found")
	case errors.Is(err, service.ErrInvalidQuery):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("read path failed", logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	}
}

func parseSearchParams(r *http.Request) (models.SearchParams, error) {
	q := r.URL.Query()
	params := models.SearchParams{
		Query:          q.Get("q"),
		City:           q.Get("city"),
		Service:        q.Get("service"),
		CapacityStatus: q.Get("capacity_status"),
	}

	if raw := q.Get("lat"); raw != "" {
		lat, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, errors.New("invalid lat parameter")
		}
		params.Latitude = &lat
	}
	if raw := q.Get("lon"); raw != "" {
		lon, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, errors.New("invalid lon parameter")
		}
		params.Longitude = &lon
	}
	if raw := q.Get("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, errors.New("invalid radius parameter")
		}
		params.RadiusKm = radius
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.New("invalid limit parameter")
		}
		params.Limit = limit
	}

	return params, nil
}
