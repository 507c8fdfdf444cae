// Package server exposes the sentinel engine over HTTP: health probes,
// Prometheus metrics and a small incident API.
package server

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/common/middleware"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/config"
)

// NewRouter constructs a ServeMux with the sentinel routes registered.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.ReadyCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/stats", h.StatsHandler)
	mux.HandleFunc("GET /api/v1/incidents", h.ListIncidents)
	mux.HandleFunc("GET /api/v1/incidents/{id}", h.GetIncident)
	mux.HandleFunc("POST /api/v1/incidents/{id}/resolve", h.ResolveIncident)
	mux.HandleFunc("POST /api/v1/incidents/{id}/investigate", h.InvestigateIncident)
	mux.HandleFunc("GET /api/v1/indicators", h.ListIndicators)
	mux.HandleFunc("GET /api/v1/blocks/{address}", h.BlockStatus)

	var handler http.Handler = mux
	handler = middleware.AccessLog(h.logger)(handler)
	handler = middleware.Recover(h.logger)(handler)
	return middleware.RequestID(handler)
}

// New returns an http.Server for handler configured from cfg.
func New(cfg config.ServerConfig, handler http.Handler, logger *logging.Logger) *http.Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     logging.NewStdLogger(logger),
	}
}
