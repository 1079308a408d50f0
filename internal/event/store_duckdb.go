// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package event

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// DuckDBStore implements Store using DuckDB. It doubles as the flush
// sink and as the queryable event trail behind the admin API.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed event store. The caller owns
// the database handle; call CreateTable before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the security_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			user_id TEXT,
			ip_address TEXT,
			user_agent TEXT,
			details JSON,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON security_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_events_type ON security_events(type);
		CREATE INDEX IF NOT EXISTS idx_events_user_id ON security_events(user_id);
		CREATE INDEX IF NOT EXISTS idx_events_ip ON security_events(ip_address);
		CREATE INDEX IF NOT EXISTS idx_events_source ON security_events(source);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Security events table created/verified")
	return nil
}

// Name identifies the sink in logs.
func (s *DuckDBStore) Name() string {
	return "duckdb"
}

// SubmitBatch persists one batch inside a single transaction.
func (s *DuckDBStore) SubmitBatch(ctx context.Context, events []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const insert = `
		INSERT INTO security_events
			(id, timestamp, type, severity, source, user_id, ip_address, user_agent, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range events {
		e := &events[i]
		if _, err := tx.ExecContext(ctx, insert,
			e.ID,
			e.Timestamp,
			string(e.Type),
			string(e.Severity),
			e.Source,
			e.UserID,
			e.IPAddress,
			e.UserAgent,
			marshalDetails(e.Details),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	return nil
}

// marshalDetails encodes the details map as a JSON string for DuckDB.
func marshalDetails(details map[string]any) string {
	if len(details) == 0 {
		return "{}"
	}
	if data, err := json.Marshal(details); err == nil {
		return string(data)
	}
	return "{}"
}

// buildWhere assembles the WHERE clause and args for a filter.
func buildWhere(filter QueryFilter) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.IPAddress != "" {
		conditions = append(conditions, "ip_address = ?")
		args = append(args, filter.IPAddress)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Query retrieves stored events matching the filter, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	where, args := buildWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT id, timestamp, type, severity, source, user_id, ip_address, user_agent, details
		 FROM security_events%s ORDER BY timestamp DESC LIMIT ? OFFSET ?`, where)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// scanEvent reads one row into an Event.
func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	var eventType, severity string
	var userID, ipAddress, userAgent, details sql.NullString
	var ts time.Time

	if err := rows.Scan(&e.ID, &ts, &eventType, &severity, &e.Source,
		&userID, &ipAddress, &userAgent, &details); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}

	e.Timestamp = ts
	e.Type = Type(eventType)
	e.Severity = Severity(severity)
	e.UserID = userID.String
	e.IPAddress = ipAddress.String
	e.UserAgent = userAgent.String

	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			logging.Warn().Err(err).Str("event_id", e.ID).Msg("Failed to decode event details")
		}
	}

	return e, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	query := "SELECT COUNT(*) FROM security_events" + where
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}

	return count, nil
}

// DeleteBefore removes events older than the cutoff, returning the
// number deleted. Used by the retention sweep.
func (s *DuckDBStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM security_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // driver may not support RowsAffected
	}
	return count, nil
}
