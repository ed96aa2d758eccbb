package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/history"
	"github.com/quintal-io/responder/internal/pkg/ctxlog"
	"github.com/quintal-io/responder/internal/pkg/httputil"
)

const defaultListLimit = 100

// Dashboard handles GET /api/v1/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.snapshots.Snapshot(r.Context()))
}

// ListIncidents handles GET /api/v1/incidents with optional ?status=
// and ?limit= filters.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		incidents []*domain.Incident
		err       error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.Status(raw)
		if !validStatus(status) {
			httputil.Error(w, http.StatusBadRequest, "unknown status")
			return
		}
		incidents, err = h.store.ListByStatus(r.Context(), status, limit)
	} else {
		incidents, err = h.store.ListRecent(r.Context(), limit)
	}
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("failed to list incidents", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// GetIncident handles GET /api/v1/incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inc, err := h.store.GetIncident(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			httputil.Error(w, http.StatusNotFound, "incident not found")
			return
		}
		ctxlog.FromContext(r.Context()).Error("failed to get incident", "incident_id", id, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to get incident")
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// AckRequest is the optional acknowledgment body.
type AckRequest struct {
	By   string `json:"by" validate:"omitempty,min=1,max=128"`
	Note string `json:"note" validate:"max=512"`
}

// AckAlert handles POST /api/v1/alerts/{id}/ack. The body is optional;
// when present it carries who acknowledged and a free-form note.
func (h *Handler) AckAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if !h.acker.Acknowledge(id) {
		httputil.Error(w, http.StatusNotFound, "alert is not awaiting acknowledgment")
		return
	}

	subject, _ := httputil.SubjectFromContext(r.Context())
	ctxlog.FromContext(r.Context()).Info("alert acknowledged via API",
		"alert_id", id,
		"subject", subject,
		"by", req.By,
		"note", req.Note,
	)
	httputil.Success(w, http.StatusOK, map[string]any{
		"alert_id":     id,
		"acknowledged": true,
	})
}

func validStatus(s domain.Status) bool {
	switch s {
	case domain.StatusActive, domain.StatusContained, domain.StatusResolved,
		domain.StatusEscalated, domain.StatusMonitoring:
		return true
	}
	return false
}
