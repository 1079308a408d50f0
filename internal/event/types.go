// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package event provides security event collection, batching, and
// anomaly detection. Events are queued in memory and flushed in batches
// to a configurable sink; each flushed batch is scanned by simple
// anomaly heuristics and published for downstream threat analysis.
package event

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Type categorizes security events.
type Type string

const (
	TypeLoginSuccess       Type = "login_success"
	TypeLoginFailure       Type = "login_failure"
	TypeLoginBlocked       Type = "login_blocked"
	TypeSuspiciousActivity Type = "suspicious_activity"
	TypeAdminAccess        Type = "admin_access"
	TypeDataAccess         Type = "data_access"
	TypeRateLimitExceeded  Type = "rate_limit_exceeded"
	TypeUnauthorizedAccess Type = "unauthorized_access"
	TypeTwoFAEnabled       Type = "2fa_enabled"
	TypeTwoFADisabled      Type = "2fa_disabled"
	TypePasswordChanged    Type = "password_changed"
	TypeAccountLocked      Type = "account_locked"
)

// Severity indicates the severity level of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is an immutable fact about something that happened. Callers
// construct one per occurrence; the monitor fills in ID, timestamp, and
// client address enrichment before queueing.
type Event struct {
	// ID is a unique identifier assigned at enqueue time.
	ID string `json:"id"`

	// Type categorizes the event.
	Type Type `json:"type"`

	// UserID identifies the affected user, if known.
	UserID string `json:"user_id,omitempty"`

	// IPAddress of the client, "unknown" when resolution fails.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent of the client.
	UserAgent string `json:"user_agent,omitempty"`

	// Details carries event-specific key-value context.
	Details map[string]any `json:"details,omitempty"`

	// Severity of the event.
	Severity Severity `json:"severity"`

	// Source is a free-form origin tag (e.g. "auth", "admin").
	Source string `json:"source"`

	// Timestamp when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives flushed event batches. Implementations must be safe for
// use from the monitor's flush goroutine.
type Sink interface {
	// SubmitBatch delivers a batch of events. A non-nil error causes the
	// monitor to re-queue the batch for the next flush.
	SubmitBatch(ctx context.Context, events []Event) error

	// Name identifies the sink in logs.
	Name() string
}

// AnomalyKind names a batch-level anomaly heuristic.
type AnomalyKind string

const (
	AnomalyMultipleFailedLogins AnomalyKind = "multiple_failed_logins"
	AnomalyUnusualAccessPattern AnomalyKind = "unusual_access_pattern"
	AnomalyRapidRequests        AnomalyKind = "rapid_requests"
)

// Anomaly describes a heuristic that fired over a flushed batch.
type Anomaly struct {
	Kind        AnomalyKind `json:"kind"`
	Description string      `json:"description"`
	Count       int         `json:"count"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// Alerter delivers anomaly notifications to an external endpoint.
type Alerter interface {
	// SendAnomalyAlert notifies about anomalies found in one batch.
	SendAnomalyAlert(ctx context.Context, anomalies []Anomaly) error
}

// MultiAlerter fans one alert out to several alerters. Delivery
// continues past failures; the first error is returned.
type MultiAlerter []Alerter

// SendAnomalyAlert implements Alerter.
func (m MultiAlerter) SendAnomalyAlert(ctx context.Context, anomalies []Anomaly) error {
	var first error
	for _, a := range m {
		if err := a.SendAnomalyAlert(ctx, anomalies); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ClientIPResolver resolves the public client address for enrichment.
type ClientIPResolver interface {
	// ClientIP returns the caller's public IP address.
	ClientIP(ctx context.Context) (string, error)
}

// QueryFilter defines filtering options for stored event queries.
type QueryFilter struct {
	Types     []Type     `json:"types,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
	Source    string     `json:"source,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}

// Store is a queryable event sink, used by the admin API to browse the
// security event trail.
type Store interface {
	Sink

	// Query retrieves stored events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)
}

// MarshalBatch encodes a batch for transport.
func MarshalBatch(events []Event) ([]byte, error) {
	return json.Marshal(events)
}

// UnmarshalBatch decodes a batch published by the monitor.
func UnmarshalBatch(payload []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, err
	}
	return events, nil
}
