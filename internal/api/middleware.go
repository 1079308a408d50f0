// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package api

import (
	"net/http"
	"strings"

	"github.com/arcadia-commerce/sentinel/internal/auth"
	"github.com/arcadia-commerce/sentinel/internal/authz"
)

// requireCapability guards a route with a Casbin capability check. The
// caller's role is read from the bearer token claims; the gateway in
// front of this server has already verified the token signature, so
// only the role claim is consumed here.
func requireCapability(enforcer *authz.Enforcer, object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleFromRequest(r)

			allowed, err := enforcer.EnforceRole(role, object, action)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "authorization check failed")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// roleFromRequest extracts the role claim from the Authorization
// bearer token. Missing or malformed tokens yield an empty role,
// which the enforcer maps to the default role.
func roleFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return ""
	}

	claims, err := auth.ParseSessionClaims(token)
	if err != nil {
		return ""
	}
	return claims.Role
}
