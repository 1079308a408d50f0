// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package threat

import (
	"time"

	"github.com/arcadia-commerce/sentinel/internal/event"
)

// Pattern names, referenced by tests and incident descriptions.
const (
	PatternBruteForce          = "Brute Force Attack"
	PatternCredentialStuffing  = "Credential Stuffing"
	PatternPrivilegeEscalation = "Admin Privilege Escalation"
	PatternDataHarvesting      = "Data Harvesting"
	PatternGeoAnomaly          = "Geolocation Anomaly"
	PatternSessionHijacking    = "Session Hijacking"
)

// Catalog returns the fixed threat pattern catalog. The catalog is
// defined at process start and never mutated.
func Catalog() []Pattern {
	return []Pattern{
		{
			Name:        PatternBruteForce,
			Description: "Repeated failed logins from a single IP address",
			Severity:    event.SeverityHigh,
			Detect:      detectBruteForce,
		},
		{
			Name:        PatternCredentialStuffing,
			Description: "Many distinct usernames attempted from a single IP address",
			Severity:    event.SeverityHigh,
			Detect:      detectCredentialStuffing,
		},
		{
			Name:        PatternPrivilegeEscalation,
			Description: "Excessive admin access volume by a single user",
			Severity:    event.SeverityCritical,
			Detect:      detectPrivilegeEscalation,
		},
		{
			Name:        PatternDataHarvesting,
			Description: "Excessive data access volume by a single user",
			Severity:    event.SeverityMedium,
			Detect:      detectDataHarvesting,
		},
		{
			Name:        PatternGeoAnomaly,
			Description: "Logins from multiple countries within one day",
			Severity:    event.SeverityMedium,
			Detect:      detectGeoAnomaly,
		},
		{
			Name:        PatternSessionHijacking,
			Description: "Simultaneously active sessions from multiple IP addresses",
			Severity:    event.SeverityHigh,
			Detect:      detectSessionHijacking,
		},
	}
}

// detectBruteForce fires on >=10 failed logins from the context IP
// within 5 minutes.
func detectBruteForce(events []event.Event, ctx Context) bool {
	if ctx.IP == "" {
		return false
	}

	count := 0
	for i := range events {
		e := &events[i]
		if e.Type == event.TypeLoginFailure && e.IPAddress == ctx.IP &&
			withinWindow(e.Timestamp, ctx.Timestamp, 5*time.Minute) {
			count++
		}
	}
	return count >= 10
}

// detectCredentialStuffing fires on >=20 distinct usernames attempted
// from the context IP within 10 minutes. The attempted username is
// read from the event's "email" detail, falling back to the user ID.
func detectCredentialStuffing(events []event.Event, ctx Context) bool {
	if ctx.IP == "" {
		return false
	}

	usernames := make(map[string]struct{})
	for i := range events {
		e := &events[i]
		if e.Type != event.TypeLoginFailure || e.IPAddress != ctx.IP ||
			!withinWindow(e.Timestamp, ctx.Timestamp, 10*time.Minute) {
			continue
		}

		username := e.UserID
		if v, ok := e.Details["email"].(string); ok && v != "" {
			username = v
		}
		if username != "" {
			usernames[username] = struct{}{}
		}
	}
	return len(usernames) >= 20
}

// detectPrivilegeEscalation fires on >=50 admin access events by the
// context user within one hour.
func detectPrivilegeEscalation(events []event.Event, ctx Context) bool {
	if ctx.UserID == "" {
		return false
	}

	count := 0
	for i := range events {
		e := &events[i]
		if e.Type == event.TypeAdminAccess && e.UserID == ctx.UserID &&
			withinWindow(e.Timestamp, ctx.Timestamp, time.Hour) {
			count++
		}
	}
	return count >= 50
}

// detectDataHarvesting fires on >=100 data access events by the
// context user within 30 minutes.
func detectDataHarvesting(events []event.Event, ctx Context) bool {
	if ctx.UserID == "" {
		return false
	}

	count := 0
	for i := range events {
		e := &events[i]
		if e.Type == event.TypeDataAccess && e.UserID == ctx.UserID &&
			withinWindow(e.Timestamp, ctx.Timestamp, 30*time.Minute) {
			count++
		}
	}
	return count >= 100
}

// detectGeoAnomaly fires on logins from >=3 distinct countries by the
// context user within 24 hours. The country is read from the event's
// "country" detail.
func detectGeoAnomaly(events []event.Event, ctx Context) bool {
	if ctx.UserID == "" {
		return false
	}

	countries := make(map[string]struct{})
	for i := range events {
		e := &events[i]
		if e.Type != event.TypeLoginSuccess || e.UserID != ctx.UserID ||
			!withinWindow(e.Timestamp, ctx.Timestamp, 24*time.Hour) {
			continue
		}
		if country, ok := e.Details["country"].(string); ok && country != "" {
			countries[country] = struct{}{}
		}
	}
	return len(countries) >= 3
}

// detectSessionHijacking fires when >=3 distinct IPs hold
// simultaneously active sessions for the context user. Session
// liveness is read from the event's "session_active" detail.
func detectSessionHijacking(events []event.Event, ctx Context) bool {
	if ctx.UserID == "" {
		return false
	}

	ips := make(map[string]struct{})
	for i := range events {
		e := &events[i]
		if e.Type != event.TypeLoginSuccess || e.UserID != ctx.UserID || e.IPAddress == "" {
			continue
		}
		if active, ok := e.Details["session_active"].(bool); !ok || !active {
			continue
		}
		ips[e.IPAddress] = struct{}{}
	}
	return len(ips) >= 3
}
