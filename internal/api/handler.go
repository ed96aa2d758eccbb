// Package api exposes the engine's read surface and alert
// acknowledgment over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quintal-io/responder/internal/history"
	"github.com/quintal-io/responder/internal/monitor"
	"github.com/quintal-io/responder/internal/pkg/httputil"
	"github.com/quintal-io/responder/internal/version"
)

// Snapshotter produces dashboard snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) monitor.Snapshot
}

// Acker records alert acknowledgments.
type Acker interface {
	Acknowledge(alertID string) bool
}

// Handler serves the HTTP API.
type Handler struct {
	snapshots Snapshotter
	store     history.Store
	acker     Acker
	validator *validator.Validate
	// streamInterval is the websocket push cadence.
	streamInterval time.Duration
}

// NewHandler creates the API handler.
func NewHandler(snapshots Snapshotter, store history.Store, acker Acker) *Handler {
	return &Handler{
		snapshots:      snapshots,
		store:          store,
		acker:          acker,
		validator:      validator.New(),
		streamInterval: defaultStreamInterval,
	}
}

// RegisterRoutes mounts the public read endpoints and the websocket
// stream. The acknowledgment endpoint is registered separately so the
// caller can wrap it with auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/incidents", h.ListIncidents)
	r.Get("/incidents/{id}", h.GetIncident)
	r.Get("/stream", h.Stream)
}

// RegisterProtectedRoutes mounts endpoints that require auth.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/alerts/{id}/ack", h.AckAlert)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Snapshot(r.Context())
	if snap.Readiness == monitor.ReadinessLimited {
		httputil.Error(w, http.StatusServiceUnavailable, "readiness limited")
		return
	}
	httputil.Success(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"readiness": snap.Readiness,
	})
}

// Versionz handles GET /version.
func (h *Handler) Versionz(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"git_commit": version.GitCommit,
		"build_date": version.BuildDate,
	})
}
