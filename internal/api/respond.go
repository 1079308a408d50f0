// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/arcadia-commerce/sentinel/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
