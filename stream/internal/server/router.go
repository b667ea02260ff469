package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careatlas-systems/pulse/common/middleware"
	"github.com/careatlas-systems/pulse/stream/internal/handlers"
)

// NewRouter constructs a ServeMux with stream service routes registered.
func NewRouter(h *handlers.Handler, cors middleware.CORSConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream/facilities/", h.Stream)
	mux.HandleFunc("/internal/v1/changes", h.NotifyChange)
	mux.HandleFunc("/healthz", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.CORS(cors)(mux))
}
