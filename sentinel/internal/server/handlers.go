package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/common/httputil"
	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/common/messaging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

const (
	defaultIndicatorLimit = 100
	maxIndicatorLimit     = 1000
	brokerCheckTimeout    = 2 * time.Second
)

// Engine is the part of the correlation engine exposed over HTTP.
type Engine interface {
	Healthy() bool
	Stats() models.EngineStatistics
	ListActiveIncidents() []models.SecurityIncident
	GetIncident(id string) (models.SecurityIncident, error)
	ResolveIncident(ctx context.Context, id string, resolution string, notes *string) error
	InvestigateIncident(id string) error
	ListThreatIndicators(limit int) []models.ThreatIndicator
	IsBlocked(address string) bool
}

// Handler serves health, incident and indicator endpoints.
type Handler struct {
	engine Engine
	broker messaging.Client
	logger *logging.Logger
}

// NewHandler creates a Handler. broker may be nil when NATS is disabled.
func NewHandler(engine Engine, broker messaging.Client, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, broker: broker, logger: logger.Component("http")}
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Service string                   `json:"service"`
	Engine  bool                     `json:"engine_healthy"`
	Broker  *messaging.HealthStatus  `json:"broker,omitempty"`
	Stats   *models.EngineStatistics `json:"stats,omitempty"`
}

// HealthCheck handles GET /healthz. It returns 503 when the maintenance loop
// is unhealthy or the broker is unreachable.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Service: "sentinel", Engine: h.engine.Healthy()}
	healthy := resp.Engine

	if h.broker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), brokerCheckTimeout)
		status := messaging.CheckClientHealth(ctx, h.broker)
		cancel()
		resp.Broker = &status
		healthy = healthy && status.Healthy()
	}

	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, resp)
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Healthy() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not_ready", Service: "sentinel"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ready", Service: "sentinel", Engine: true})
}

// StatsHandler handles GET /api/v1/stats
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONAPIResource(w, http.StatusOK, "engine_statistics", "current", h.engine.Stats())
}

// ListIncidents handles GET /api/v1/incidents
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	list := h.engine.ListActiveIncidents()
	resources := make([]httputil.Resource, len(list))
	for i := range list {
		resources[i] = httputil.Resource{Type: "incident", ID: list[i].ID, Attributes: list[i]}
	}
	httputil.WriteJSONAPICollection(w, http.StatusOK, resources, map[string]any{"total": len(list)})
}

// GetIncident handles GET /api/v1/incidents/{id}
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inc, err := h.engine.GetIncident(id)
	if err != nil {
		h.writeError(w, r, err, id)
		return
	}
	httputil.WriteJSONAPIResource(w, http.StatusOK, "incident", inc.ID, inc)
}

// ResolveRequest is the body of POST /api/v1/incidents/{id}/resolve.
type ResolveRequest struct {
	Resolution string  `json:"resolution"`
	Notes      *string `json:"notes,omitempty"`
}

// ResolveIncident handles POST /api/v1/incidents/{id}/resolve
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req := ResolveRequest{Resolution: string(models.StatusResolved)}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSONAPIValidationError(w, err.Error())
		return
	}
	if err := h.engine.ResolveIncident(r.Context(), id, req.Resolution, req.Notes); err != nil {
		h.writeError(w, r, err, id)
		return
	}
	h.logger.InfoContext(r.Context(), "incident resolved via api",
		logging.IncidentID(id),
		"resolution", req.Resolution)
	w.WriteHeader(http.StatusNoContent)
}

// InvestigateIncident handles POST /api/v1/incidents/{id}/investigate
func (h *Handler) InvestigateIncident(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.InvestigateIncident(id); err != nil {
		h.writeError(w, r, err, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIndicators handles GET /api/v1/indicators?limit=N
func (h *Handler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	limit := httputil.ParseIntParam(r.URL.Query().Get("limit"), defaultIndicatorLimit)
	if limit <= 0 || limit > maxIndicatorLimit {
		limit = maxIndicatorLimit
	}
	list := h.engine.ListThreatIndicators(limit)
	resources := make([]httputil.Resource, len(list))
	for i := range list {
		resources[i] = httputil.Resource{Type: "threat_indicator", ID: list[i].ID, Attributes: list[i]}
	}
	httputil.WriteJSONAPICollection(w, http.StatusOK, resources, map[string]any{"limit": limit})
}

// BlockStatus handles GET /api/v1/blocks/{address}
func (h *Handler) BlockStatus(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	httputil.WriteJSONAPIResource(w, http.StatusOK, "block", addr, map[string]any{
		"address": addr,
		"blocked": h.engine.IsBlocked(addr),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, id string) {
	switch {
	case models.IsNotFound(err):
		httputil.WriteJSONAPINotFoundError(w, "incident", id)
	case models.IsValidation(err):
		httputil.WriteJSONAPIValidationError(w, err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		httputil.WriteJSONAPIConflictError(w, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			logging.IncidentID(id),
			logging.Error(err))
		httputil.WriteJSONAPIInternalError(w, "an internal error occurred")
	}
}
