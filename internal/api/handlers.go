// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package api serves the admin HTTP surface: limiter stats, incident
// management, event queries, and the live websocket feed.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/incident"
	"github.com/arcadia-commerce/sentinel/internal/ratelimit"
)

// Handler implements the admin API endpoints.
type Handler struct {
	limiters  map[string]*ratelimit.Limiter
	incidents *incident.Manager
	events    event.Store
}

// NewHandler creates the admin API handler. limiters is keyed by
// scope name (auth, api, admin); events may be nil when no queryable
// store is configured.
func NewHandler(limiters map[string]*ratelimit.Limiter, incidents *incident.Manager, events event.Store) *Handler {
	return &Handler{
		limiters:  limiters,
		incidents: incidents,
		events:    events,
	}
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats returns per-scope limiter statistics and incident counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	limiterStats := make(map[string]ratelimit.Stats, len(h.limiters))
	for scope, limiter := range h.limiters {
		limiterStats[scope] = limiter.GetStats()
	}

	all, err := h.incidents.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	active := 0
	for _, inc := range all {
		if inc.Active() {
			active++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"limiters": limiterStats,
		"incidents": map[string]int{
			"total":  len(all),
			"active": active,
		},
	})
}

// ListIncidents returns tracked incidents, optionally only active
// ones (?active=true).
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	var (
		incidents []*incident.Incident
		err       error
	)
	if r.URL.Query().Get("active") == "true" {
		incidents, err = h.incidents.ActiveIncidents(r.Context())
	} else {
		incidents, err = h.incidents.List(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}

// GetIncident returns one incident by id.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type updateStatusRequest struct {
	Status incident.Status `json:"status"`
}

// UpdateIncidentStatus sets an incident's lifecycle status.
func (h *Handler) UpdateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !incident.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	inc, err := h.incidents.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type addActionRequest struct {
	Action string `json:"action"`
}

// AddIncidentAction appends a manual response action.
func (h *Handler) AddIncidentAction(w http.ResponseWriter, r *http.Request) {
	var req addActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inc, err := h.incidents.AddAction(r.Context(), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type unblockRequest struct {
	Scope      string `json:"scope"`
	Identifier string `json:"identifier,omitempty"`
	IP         string `json:"ip,omitempty"`
}

// Unblock lifts a user block, an IP block, or both on one limiter
// scope.
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	var req unblockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	limiter, ok := h.limiters[req.Scope]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown limiter scope")
		return
	}
	if req.Identifier == "" && req.IP == "" {
		writeError(w, http.StatusBadRequest, "identifier or ip required")
		return
	}

	if req.Identifier != "" {
		limiter.UnblockUser(req.Identifier)
	}
	if req.IP != "" {
		limiter.UnblockIP(req.IP)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

// QueryEvents browses the stored security event trail.
func (h *Handler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotImplemented, "no event store configured")
		return
	}

	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}
	total, err := h.events.Count(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// ListRunbooks returns the incident classes with procedure checklists.
func (h *Handler) ListRunbooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"classes": incident.RunbookClasses()})
}

// GetRunbook returns the checklist for one incident class.
func (h *Handler) GetRunbook(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	steps, ok := incident.Runbook(class)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown runbook class")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"class": class, "steps": steps})
}

func parseEventFilter(r *http.Request) (event.QueryFilter, error) {
	filter := event.DefaultQueryFilter()
	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		filter.Types = []event.Type{event.Type(v)}
	}
	filter.UserID = q.Get("user_id")
	filter.IPAddress = q.Get("ip")
	filter.Source = q.Get("source")

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			return filter, errors.New("limit must be between 1 and 1000")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, errors.New("offset must be non-negative")
		}
		filter.Offset = offset
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("from must be RFC3339")
		}
		filter.StartTime = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("to must be RFC3339")
		}
		filter.EndTime = &to
	}
	return filter, nil
}
