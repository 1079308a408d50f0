// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package threat

import (
	"context"

	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// Engine evaluates the pattern catalog against recent events.
type Engine struct {
	patterns []Pattern
	logger   EventLogger
}

// NewEngine creates a threat detection engine. The logger receives a
// suspicious_activity event for every matched pattern; pass nil to
// disable that.
func NewEngine(logger EventLogger) *Engine {
	return &Engine{
		patterns: Catalog(),
		logger:   logger,
	}
}

// Patterns returns the catalog the engine evaluates.
func (e *Engine) Patterns() []Pattern {
	return e.patterns
}

// Analyze evaluates all patterns against the given events and returns
// the matches. Each match is also logged as a suspicious_activity
// security event.
func (e *Engine) Analyze(ctx context.Context, events []event.Event, tctx Context) []Pattern {
	var matched []Pattern

	for _, p := range e.patterns {
		if !p.Detect(events, tctx) {
			continue
		}

		matched = append(matched, p)
		threatsDetected.WithLabelValues(p.Name, string(p.Severity)).Inc()

		logging.Warn().
			Str("pattern", p.Name).
			Str("severity", string(p.Severity)).
			Str("user_id", tctx.UserID).
			Str("ip", tctx.IP).
			Msg("Threat pattern matched")

		if e.logger != nil {
			e.logger.Log(ctx, event.Event{
				Type:      event.TypeSuspiciousActivity,
				UserID:    tctx.UserID,
				IPAddress: tctx.IP,
				Severity:  p.Severity,
				Source:    "threat_detection",
				Details: map[string]any{
					"pattern":     p.Name,
					"description": p.Description,
					"severity":    string(p.Severity),
				},
			})
		}
	}

	return matched
}

// Respond dispatches each matched threat to a severity-specific
// handler. The handlers only log: actual blocking is enforced
// independently by the rate limiter and is not wired back from threat
// severity. Keep it that way unless product requirements close the gap.
func (e *Engine) Respond(ctx context.Context, matches []Pattern, tctx Context) {
	for _, p := range matches {
		switch p.Severity {
		case event.SeverityCritical:
			e.respondCritical(p, tctx)
		case event.SeverityHigh:
			e.respondHigh(p, tctx)
		case event.SeverityMedium:
			e.respondMedium(p, tctx)
		default:
			e.respondLow(p, tctx)
		}
	}
}

func (e *Engine) respondCritical(p Pattern, tctx Context) {
	logging.Error().
		Str("pattern", p.Name).
		Str("user_id", tctx.UserID).
		Str("ip", tctx.IP).
		Msg("CRITICAL threat detected")
}

func (e *Engine) respondHigh(p Pattern, tctx Context) {
	logging.Warn().
		Str("pattern", p.Name).
		Str("user_id", tctx.UserID).
		Str("ip", tctx.IP).
		Msg("High severity threat detected")
}

func (e *Engine) respondMedium(p Pattern, tctx Context) {
	logging.Warn().
		Str("pattern", p.Name).
		Str("user_id", tctx.UserID).
		Str("ip", tctx.IP).
		Msg("Medium severity threat detected")
}

func (e *Engine) respondLow(p Pattern, tctx Context) {
	logging.Info().
		Str("pattern", p.Name).
		Str("user_id", tctx.UserID).
		Str("ip", tctx.IP).
		Msg("Low severity threat detected")
}
