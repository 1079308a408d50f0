// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package incident tracks security incidents through their response
// lifecycle: creation from detected threats or explicit reports,
// severity-keyed automated response, status updates, and retention.
package incident

import (
	"context"
	"errors"
	"time"

	"github.com/arcadia-commerce/sentinel/internal/event"
)

// Status is an incident lifecycle state. The expected flow is
// open -> investigating -> contained -> resolved, but no transition
// table is enforced: any status may be set at any time so operators
// can correct mistakes or skip stages.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusContained     Status = "contained"
	StatusResolved      Status = "resolved"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusContained, StatusResolved:
		return true
	}
	return false
}

// ErrNotFound is returned when an incident id does not exist.
var ErrNotFound = errors.New("incident not found")

// Incident is a tracked response unit.
type Incident struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Severity        event.Severity   `json:"severity"`
	Description     string           `json:"description"`
	Status          Status           `json:"status"`
	AffectedUsers   []string         `json:"affected_users,omitempty"`
	ResponseActions []string         `json:"response_actions"`
	Evidence        []map[string]any `json:"evidence,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Active reports whether the incident still needs attention.
func (i *Incident) Active() bool {
	return i.Status == StatusOpen || i.Status == StatusInvestigating
}

// Store persists incidents. Save overwrites by ID.
type Store interface {
	Save(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, id string) (*Incident, error)
	List(ctx context.Context) ([]*Incident, error)
	Delete(ctx context.Context, id string) error
}

// Broadcaster pushes newly opened incidents to live subscribers. The
// websocket hub satisfies this.
type Broadcaster interface {
	BroadcastIncident(inc *Incident)
}
