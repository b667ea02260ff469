package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careatlas-systems/pulse/common/middleware"
	"github.com/careatlas-systems/pulse/query/internal/handlers"
)

// NewRouter constructs a ServeMux with query API routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/facilities/", h.Facilities)
	mux.HandleFunc("/admin/v1/cache/purge", h.PurgeCache)
	mux.HandleFunc("/healthz", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
