// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the JWT claims carried in a provider access
// token.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseSessionClaims extracts claims from a provider access token
// without verifying the signature. The provider has already verified
// the token; this is only used to recover the user id and email when
// the session payload omits them. Never use this for trust decisions.
func ParseSessionClaims(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parser := jwt.NewParser()

	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

// fillFromToken backfills missing session identity fields from the
// access token claims.
func fillFromToken(s *Session) {
	if s == nil || s.AccessToken == "" {
		return
	}
	if s.UserID != "" && s.Email != "" {
		return
	}

	claims, err := ParseSessionClaims(s.AccessToken)
	if err != nil {
		return
	}
	if s.UserID == "" {
		s.UserID = claims.Subject
	}
	if s.Email == "" {
		s.Email = claims.Email
	}
}
