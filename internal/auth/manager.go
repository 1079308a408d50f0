// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arcadia-commerce/sentinel/internal/authz"
	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/incident"
	"github.com/arcadia-commerce/sentinel/internal/logging"
	"github.com/arcadia-commerce/sentinel/internal/ratelimit"
	"github.com/arcadia-commerce/sentinel/internal/threat"
)

// Errors surfaced to callers. Provider failures are never passed
// through verbatim; they collapse into one of these.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrRateLimited  = errors.New("too many login attempts")
	ErrSystem       = errors.New("system error occurred")
)

// SecurityLogger records security events. The event monitor satisfies
// this.
type SecurityLogger interface {
	Log(ctx context.Context, e event.Event)
}

// LoginResult is the outcome of a SecureLogin call.
type LoginResult struct {
	Success     bool          `json:"success"`
	Session     *Session      `json:"session,omitempty"`
	Requires2FA bool          `json:"requires_2fa,omitempty"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
}

// Manager orchestrates the secure login flow: validation, rate
// limiting, credential verification, threat analysis, and event
// logging.
type Manager struct {
	provider  Provider
	limiter   *ratelimit.Limiter
	events    SecurityLogger
	engine    *threat.Engine
	incidents *incident.Manager
	enforcer  *authz.Enforcer
	validate  *validator.Validate

	now func() time.Time
}

// NewManager creates the security manager facade. All collaborators
// are required.
func NewManager(provider Provider, limiter *ratelimit.Limiter, events SecurityLogger, engine *threat.Engine, incidents *incident.Manager, enforcer *authz.Enforcer) *Manager {
	return &Manager{
		provider:  provider,
		limiter:   limiter,
		events:    events,
		engine:    engine,
		incidents: incidents,
		enforcer:  enforcer,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// SecureLogin runs the full login flow for an email/password attempt
// from the given IP. Rate limit rejections also log a login_failure
// event, so an attacker hammering a blocked account keeps leaving a
// trail.
func (m *Manager) SecureLogin(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := m.validate.Var(email, "required,email"); err != nil {
		m.logFailure(ctx, email, ip, "invalid_email")
		loginAttempts.WithLabelValues("invalid_email").Inc()
		return &LoginResult{}, ErrInvalidEmail
	}

	if !m.limiter.Allow(email, ip) {
		m.logFailure(ctx, email, ip, "rate_limited")
		loginAttempts.WithLabelValues("rate_limited").Inc()

		result := &LoginResult{}
		if info := m.limiter.GetBlockInfo(email); info.Blocked {
			result.RetryAfter = info.TimeRemaining
		}
		return result, ErrRateLimited
	}

	session, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailNotConfirmed):
			m.logFailure(ctx, email, ip, "email_not_confirmed")
			loginAttempts.WithLabelValues("failure").Inc()
			return &LoginResult{}, ErrEmailNotConfirmed
		case errors.Is(err, ErrInvalidCredentials):
			m.logFailure(ctx, email, ip, "invalid_credentials")
			loginAttempts.WithLabelValues("failure").Inc()
			m.analyzeLoginFailure(ctx, email, ip)
			return &LoginResult{}, ErrInvalidCredentials
		default:
			logging.Err(err).Str("ip", ip).Msg("Sign-in provider error")
			loginAttempts.WithLabelValues("error").Inc()
			return &LoginResult{}, ErrSystem
		}
	}

	fillFromToken(session)

	settings, err := m.provider.UserSettings(ctx, session.UserID)
	if err != nil {
		logging.Err(err).Str("user_id", session.UserID).Msg("Settings lookup failed")
		if signOutErr := m.provider.SignOut(ctx, session.UserID); signOutErr != nil {
			logging.Err(signOutErr).Str("user_id", session.UserID).Msg("Sign-out after settings failure failed")
		}
		return &LoginResult{}, ErrSystem
	}

	if settings.TwoFactorEnabled {
		// The password alone must not yield a usable session when 2FA
		// is on. Sign back out and make the caller run the 2FA step.
		if err := m.provider.SignOut(ctx, session.UserID); err != nil {
			logging.Err(err).Str("user_id", session.UserID).Msg("Pre-2FA sign-out failed")
			return &LoginResult{}, ErrSystem
		}
		loginAttempts.WithLabelValues("requires_2fa").Inc()
		return &LoginResult{Requires2FA: true}, nil
	}

	m.events.Log(ctx, event.Event{
		Type:      event.TypeLoginSuccess,
		UserID:    session.UserID,
		IPAddress: ip,
		Severity:  event.SeverityLow,
		Source:    "auth",
		Details:   map[string]any{"email": email},
	})
	loginAttempts.WithLabelValues("success").Inc()

	return &LoginResult{Success: true, Session: session}, nil
}

// Verify2FALogin verifies a one-time token and completes the login by
// sending a magic link.
func (m *Manager) Verify2FALogin(ctx context.Context, userID, token string) error {
	ok, err := m.provider.VerifyTOTP(ctx, userID, token)
	if err != nil {
		logging.Err(err).Str("user_id", userID).Msg("2FA verification error")
		twoFactorChecks.WithLabelValues("error").Inc()
		return ErrSystem
	}

	if !ok {
		m.events.Log(ctx, event.Event{
			Type:     event.TypeSuspiciousActivity,
			UserID:   userID,
			Severity: event.SeverityMedium,
			Source:   "auth",
			Details:  map[string]any{"reason": "invalid_2fa_token"},
		})
		twoFactorChecks.WithLabelValues("denied").Inc()
		return ErrInvalidCredentials
	}

	profile, err := m.provider.Profile(ctx, userID)
	if err != nil {
		logging.Err(err).Str("user_id", userID).Msg("Profile lookup failed")
		return ErrSystem
	}

	if err := m.provider.GenerateMagicLink(ctx, profile.Email); err != nil {
		logging.Err(err).Str("user_id", userID).Msg("Magic link generation failed")
		return ErrSystem
	}

	m.events.Log(ctx, event.Event{
		Type:     event.TypeLoginSuccess,
		UserID:   userID,
		Severity: event.SeverityLow,
		Source:   "auth",
		Details:  map[string]any{"method": "2fa"},
	})
	twoFactorChecks.WithLabelValues("verified").Inc()
	return nil
}

// AuditUserAction records an admin_access security event for an
// action a user performed.
func (m *Manager) AuditUserAction(ctx context.Context, userID, action, resource string) {
	m.events.Log(ctx, event.Event{
		Type:     event.TypeAdminAccess,
		UserID:   userID,
		Severity: event.SeverityLow,
		Source:   "auth",
		Details: map[string]any{
			"action":   action,
			"resource": resource,
		},
	})
}

// ValidateAdminAction checks whether the user's role allows the given
// capability and logs the check as an admin_access event.
func (m *Manager) ValidateAdminAction(ctx context.Context, userID, object, action string) (bool, error) {
	profile, err := m.provider.Profile(ctx, userID)
	if err != nil {
		logging.Err(err).Str("user_id", userID).Msg("Profile lookup failed")
		return false, ErrSystem
	}

	allowed, err := m.enforcer.EnforceRole(normalizeRole(profile.Role), object, action)
	if err != nil {
		logging.Err(err).Str("user_id", userID).Msg("Authorization check failed")
		return false, ErrSystem
	}

	m.events.Log(ctx, event.Event{
		Type:     event.TypeAdminAccess,
		UserID:   userID,
		Severity: event.SeverityLow,
		Source:   "auth",
		Details: map[string]any{
			"object":  object,
			"action":  action,
			"role":    profile.Role,
			"allowed": allowed,
		},
	})
	return allowed, nil
}

// normalizeRole maps legacy role spellings onto the canonical policy
// role names.
func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "superadmin", "super-admin", authz.RoleSuperAdmin:
		return authz.RoleSuperAdmin
	case authz.RoleAdmin:
		return authz.RoleAdmin
	case "", authz.RoleCustomer:
		return authz.RoleCustomer
	default:
		return strings.ToLower(strings.TrimSpace(role))
	}
}

// analyzeLoginFailure feeds the failed attempt through the threat
// engine and opens an incident for every matched pattern.
func (m *Manager) analyzeLoginFailure(ctx context.Context, email, ip string) {
	now := m.now()
	failure := event.Event{
		Type:      event.TypeLoginFailure,
		IPAddress: ip,
		Timestamp: now,
		Severity:  event.SeverityMedium,
		Source:    "auth",
		Details:   map[string]any{"email": email},
	}
	tctx := threat.Context{IP: ip, Timestamp: now}

	matches := m.engine.Analyze(ctx, []event.Event{failure}, tctx)
	if len(matches) == 0 {
		return
	}

	for _, p := range matches {
		evidence := []map[string]any{{"email": email, "ip": ip, "timestamp": now}}
		if _, err := m.incidents.Create(ctx, p.Name, p.Severity, p.Description, evidence); err != nil {
			logging.Err(err).Str("pattern", p.Name).Msg("Failed to open incident")
		}
	}
	m.engine.Respond(ctx, matches, tctx)
}

// logFailure records a login_failure security event.
func (m *Manager) logFailure(ctx context.Context, email, ip, reason string) {
	m.events.Log(ctx, event.Event{
		Type:      event.TypeLoginFailure,
		IPAddress: ip,
		Severity:  event.SeverityMedium,
		Source:    "auth",
		Details: map[string]any{
			"email":  email,
			"reason": reason,
		},
	})
}
