// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package auth implements the enhanced security manager: a facade
// over the external identity provider that wires rate limiting,
// security event logging, threat analysis, and incident response into
// the login flow.
package auth

import (
	"context"
	"errors"
	"time"
)

// Provider errors the facade distinguishes. Anything else from the
// provider is treated as a system error and never surfaced verbatim.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
)

// Session is the authenticated session returned by the provider.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// UserSettings holds the per-user security settings the facade needs.
type UserSettings struct {
	TwoFactorEnabled bool `json:"two_factor_enabled"`
}

// Profile is the subset of the user profile consulted for
// authorization decisions.
type Profile struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Provider abstracts the external identity service. Implementations
// are expected to return ErrInvalidCredentials or
// ErrEmailNotConfirmed for the corresponding sign-in failures.
type Provider interface {
	// SignIn verifies credentials and opens a session.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignOut terminates the user's current session.
	SignOut(ctx context.Context, userID string) error

	// VerifyTOTP checks a one-time 2FA token for the user.
	VerifyTOTP(ctx context.Context, userID, token string) (bool, error)

	// GenerateMagicLink sends a one-time sign-in link, completing a
	// 2FA login.
	GenerateMagicLink(ctx context.Context, email string) error

	// UserSettings returns the user's security settings.
	UserSettings(ctx context.Context, userID string) (*UserSettings, error)

	// Profile returns the user's profile.
	Profile(ctx context.Context, userID string) (*Profile, error)
}
