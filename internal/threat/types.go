// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package threat evaluates a fixed catalog of named threat patterns
// against a window of recent security events. Patterns are pure
// predicates; the engine logs a suspicious_activity event for each
// match and hands matches to the incident manager via the caller.
package threat

import (
	"context"
	"time"

	"github.com/arcadia-commerce/sentinel/internal/event"
)

// Context carries the evaluation anchor for pattern detection: who and
// where the triggering activity came from, and when it happened.
type Context struct {
	UserID    string    `json:"user_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Pattern is a named, static detection rule. Detect must be a pure
// predicate over the event list and context.
type Pattern struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Severity    event.Severity `json:"severity"`
	Detect      func(events []event.Event, ctx Context) bool `json:"-"`
}

// EventLogger records security events produced by the engine. The
// event monitor satisfies this.
type EventLogger interface {
	Log(ctx context.Context, e event.Event)
}

// withinWindow reports whether ts falls inside the window ending at the
// context timestamp.
func withinWindow(ts, anchor time.Time, window time.Duration) bool {
	if ts.After(anchor) {
		return false
	}
	return anchor.Sub(ts) <= window
}
