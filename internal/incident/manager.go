// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package incident

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// Canned response actions appended on creation, keyed by severity.
var responseActions = map[event.Severity][]string{
	event.SeverityCritical: {
		"Notify security team immediately",
		"Block affected IP addresses",
		"Revoke active sessions for affected users",
		"Preserve evidence and audit logs",
		"Open incident bridge with on-call",
	},
	event.SeverityHigh: {
		"Notify security team",
		"Increase monitoring on affected accounts",
		"Require password reset for affected users",
		"Review recent audit logs",
	},
	event.SeverityMedium: {
		"Flag affected accounts for review",
		"Extend log retention for affected scope",
		"Schedule security review",
	},
	event.SeverityLow: {
		"Record for trend analysis",
		"No immediate action required",
	},
}

// Static runbook checklists by incident class. Human-readable
// procedure references, not executable logic.
var runbooks = map[string][]string{
	"data_breach": {
		"Identify and isolate affected systems",
		"Determine scope of exposed data",
		"Preserve forensic evidence",
		"Notify legal and compliance",
		"Prepare customer notification if required",
		"Rotate credentials and keys in scope",
	},
	"unauthorized_access": {
		"Revoke the compromised credentials",
		"Review audit trail for the account",
		"Check for persistence mechanisms",
		"Reset affected user passwords",
		"Verify no lateral movement occurred",
	},
	"malware": {
		"Isolate the affected host from the network",
		"Capture memory and disk images",
		"Identify the malware family and entry point",
		"Scan adjacent systems",
		"Rebuild from known-good sources",
	},
}

// Runbook returns the procedure checklist for a known incident class.
func Runbook(class string) ([]string, bool) {
	steps, ok := runbooks[class]
	return steps, ok
}

// RunbookClasses returns the incident classes that have runbooks.
func RunbookClasses() []string {
	classes := make([]string, 0, len(runbooks))
	for class := range runbooks {
		classes = append(classes, class)
	}
	return classes
}

// Config controls incident retention.
type Config struct {
	// Retention is how long resolved incidents are kept before the
	// sweep removes them. Zero disables sweeping.
	Retention time.Duration `json:"retention" koanf:"retention"`
	// SweepInterval is how often the retention sweep runs.
	SweepInterval time.Duration `json:"sweep_interval" koanf:"sweep_interval"`
}

// DefaultConfig keeps resolved incidents for 30 days.
func DefaultConfig() Config {
	return Config{
		Retention:     30 * 24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// Manager creates and tracks security incidents.
type Manager struct {
	config      Config
	store       Store
	broadcaster Broadcaster

	now func() time.Time
}

// NewManager creates an incident manager. broadcaster may be nil.
func NewManager(config Config, store Store, broadcaster Broadcaster) *Manager {
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Hour
	}
	return &Manager{
		config:      config,
		store:       store,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// newID builds an incident id of the form INC-<epoch-ms>-<suffix>,
// where the suffix is a random base36 string. Randomness comes from
// crypto/rand so ids stay unique under rapid creation within the same
// millisecond.
func (m *Manager) newID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fall back to the clock; still unique enough outside of a
		// same-nanosecond collision.
		return fmt.Sprintf("INC-%d-%s", m.now().UnixMilli(),
			strconv.FormatInt(m.now().UnixNano()%int64(1<<40), 36))
	}
	suffix := strconv.FormatUint(binary.BigEndian.Uint64(buf[:])&((1<<48)-1), 36)
	return fmt.Sprintf("INC-%d-%s", m.now().UnixMilli(), suffix)
}

// Create opens a new incident and immediately triggers the automated
// response for its severity.
func (m *Manager) Create(ctx context.Context, incidentType string, severity event.Severity, description string, evidence []map[string]any) (*Incident, error) {
	now := m.now()
	inc := &Incident{
		ID:          m.newID(),
		Type:        incidentType,
		Severity:    severity,
		Description: description,
		Status:      StatusOpen,
		Evidence:    evidence,
		Timestamp:   now,
		UpdatedAt:   now,
	}

	actions := responseActions[severity]
	if actions == nil {
		actions = responseActions[event.SeverityLow]
	}
	inc.ResponseActions = append(inc.ResponseActions, actions...)

	if err := m.store.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("save incident: %w", err)
	}

	incidentsOpened.WithLabelValues(string(severity)).Inc()

	logging.Info().
		Str("incident_id", inc.ID).
		Str("type", incidentType).
		Str("severity", string(severity)).
		Msg("Incident created")

	m.executeAutomatedResponse(inc)

	if m.broadcaster != nil {
		m.broadcaster.BroadcastIncident(inc)
	}

	return inc, nil
}

// executeAutomatedResponse dispatches by severity. The handlers only
// log at severity-appropriate levels: blocking is enforced
// independently by the rate limiter and is not wired back from
// incident severity.
func (m *Manager) executeAutomatedResponse(inc *Incident) {
	actions := strings.Join(inc.ResponseActions, "; ")

	switch inc.Severity {
	case event.SeverityCritical:
		logging.Error().
			Str("incident_id", inc.ID).
			Str("actions", actions).
			Msg("CRITICAL incident automated response")
	case event.SeverityHigh:
		logging.Warn().
			Str("incident_id", inc.ID).
			Str("actions", actions).
			Msg("High severity incident automated response")
	case event.SeverityMedium:
		logging.Warn().
			Str("incident_id", inc.ID).
			Str("actions", actions).
			Msg("Medium severity incident automated response")
	default:
		logging.Info().
			Str("incident_id", inc.ID).
			Str("actions", actions).
			Msg("Low severity incident automated response")
	}
}

// Get returns an incident by id.
func (m *Manager) Get(ctx context.Context, id string) (*Incident, error) {
	return m.store.Get(ctx, id)
}

// List returns all tracked incidents.
func (m *Manager) List(ctx context.Context) ([]*Incident, error) {
	return m.store.List(ctx)
}

// ActiveIncidents returns incidents with status open or investigating.
func (m *Manager) ActiveIncidents(ctx context.Context) ([]*Incident, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	active := all[:0]
	for _, inc := range all {
		if inc.Active() {
			active = append(active, inc)
		}
	}
	return active, nil
}

// UpdateStatus sets an incident's status. Any known status may be set
// regardless of the current one; only unknown status values are
// rejected. The change is recorded as a response action.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status Status) (*Incident, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("unknown incident status %q", status)
	}

	inc, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := inc.Status
	inc.Status = status
	inc.UpdatedAt = m.now()
	inc.ResponseActions = append(inc.ResponseActions,
		fmt.Sprintf("Status changed from %s to %s", previous, status))

	if err := m.store.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("save incident: %w", err)
	}

	logging.Info().
		Str("incident_id", id).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("Incident status updated")

	return inc, nil
}

// AddAction appends a manual response action to an incident.
func (m *Manager) AddAction(ctx context.Context, id, action string) (*Incident, error) {
	inc, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	inc.ResponseActions = append(inc.ResponseActions, action)
	inc.UpdatedAt = m.now()

	if err := m.store.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("save incident: %w", err)
	}
	return inc, nil
}

// SweepResolved deletes resolved incidents older than the retention
// period and returns the number removed.
func (m *Manager) SweepResolved(ctx context.Context) (int, error) {
	if m.config.Retention <= 0 {
		return 0, nil
	}

	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-m.config.Retention)
	removed := 0
	for _, inc := range all {
		if inc.Status != StatusResolved || inc.UpdatedAt.After(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, inc.ID); err != nil {
			logging.Err(err).Str("incident_id", inc.ID).Msg("Failed to sweep incident")
			continue
		}
		removed++
	}

	if removed > 0 {
		logging.Info().Int("removed", removed).Msg("Retention sweep removed resolved incidents")
	}
	return removed, nil
}

// StartRetentionRoutine runs the retention sweep on an interval until
// the context is cancelled.
func (m *Manager) StartRetentionRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.SweepResolved(ctx); err != nil {
					logging.Err(err).Msg("Retention sweep failed")
				}
			}
		}
	}()
}
