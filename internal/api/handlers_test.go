// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/arcadia-commerce/sentinel/internal/auth"
	"github.com/arcadia-commerce/sentinel/internal/authz"
	"github.com/arcadia-commerce/sentinel/internal/config"
	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/incident"
	"github.com/arcadia-commerce/sentinel/internal/ratelimit"
)

type testServer struct {
	server    *Server
	limiter   *ratelimit.Limiter
	incidents *incident.Manager
	events    *event.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	enforcer, err := authz.NewEnforcer(authz.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	limiter := ratelimit.NewAuthLimiter()
	incidents := incident.NewManager(incident.DefaultConfig(), incident.NewMemoryStore(), nil)
	events := event.NewMemoryStore()

	handler := NewHandler(map[string]*ratelimit.Limiter{"auth": limiter}, incidents, events)

	cfg := config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		Timeout:         10 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}

	return &testServer{
		server:    NewServer(cfg, handler, enforcer, nil),
		limiter:   limiter,
		incidents: incidents,
		events:    events,
	}
}

func bearerToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return "Bearer " + signed
}

func (ts *testServer) request(t *testing.T, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set("Authorization", bearerToken(t, role))
	}
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatsRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.request(t, http.MethodGet, "/api/v1/security/stats", "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("anonymous: status = %d, want 403", rec.Code)
	}
	if rec := ts.request(t, http.MethodGet, "/api/v1/security/stats", "customer", ""); rec.Code != http.StatusForbidden {
		t.Errorf("customer: status = %d, want 403", rec.Code)
	}

	rec := ts.request(t, http.MethodGet, "/api/v1/security/stats", "admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["limiters"]; !ok {
		t.Error("response missing limiters")
	}
	if _, ok := body["incidents"]; !ok {
		t.Error("response missing incidents")
	}
}

func TestIncidentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	inc, err := ts.incidents.Create(ctx, "Brute Force Attack", event.SeverityHigh, "repeated failures", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := ts.request(t, http.MethodGet, "/api/v1/incidents/?active=true", "admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d, want 200", rec.Code)
	}
	var listed []*incident.Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != inc.ID {
		t.Fatalf("listed = %+v, want the created incident", listed)
	}

	rec = ts.request(t, http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", "admin", `{"status":"resolved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/incidents/"+inc.ID, "admin", "")
	var got incident.Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != incident.StatusResolved {
		t.Errorf("status = %q, want resolved", got.Status)
	}
}

func TestIncidentStatusValidation(t *testing.T) {
	ts := newTestServer(t)
	inc, _ := ts.incidents.Create(context.Background(), "test", event.SeverityLow, "d", nil)

	rec := ts.request(t, http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", "admin", `{"status":"escalated"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: code = %d, want 400", rec.Code)
	}

	rec = ts.request(t, http.MethodPatch, "/api/v1/incidents/INC-0-missing/status", "admin", `{"status":"resolved"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing incident: code = %d, want 404", rec.Code)
	}

	rec = ts.request(t, http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", "customer", `{"status":"resolved"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("customer write: code = %d, want 403", rec.Code)
	}
}

func TestUnblockEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Drive the identifier into a blocked state.
	for i := 0; i < 6; i++ {
		ts.limiter.Allow("victim@example.com", "203.0.113.9")
	}
	if ts.limiter.Allow("victim@example.com", "203.0.113.9") {
		t.Fatal("expected identifier to be blocked")
	}

	rec := ts.request(t, http.MethodPost, "/api/v1/ratelimit/unblock", "admin",
		`{"scope":"auth","identifier":"victim@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unblock: status = %d: %s", rec.Code, rec.Body.String())
	}

	if !ts.limiter.Allow("victim@example.com", "203.0.113.9") {
		t.Error("identifier still blocked after unblock")
	}
}

func TestUnblockValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/ratelimit/unblock", "admin", `{"scope":"payments","identifier":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown scope: code = %d, want 400", rec.Code)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/ratelimit/unblock", "admin", `{"scope":"auth"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty target: code = %d, want 400", rec.Code)
	}
}

func TestQueryEvents(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	batch := []event.Event{
		{ID: "1", Type: event.TypeLoginFailure, UserID: "u-1", IPAddress: "203.0.113.9", Timestamp: time.Now()},
		{ID: "2", Type: event.TypeLoginSuccess, UserID: "u-1", IPAddress: "203.0.113.9", Timestamp: time.Now()},
		{ID: "3", Type: event.TypeLoginFailure, UserID: "u-2", IPAddress: "203.0.113.10", Timestamp: time.Now()},
	}
	if err := ts.events.SubmitBatch(ctx, batch); err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	rec := ts.request(t, http.MethodGet, "/api/v1/events?type=login_failure", "admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Events []event.Event `json:"events"`
		Total  int64         `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Total != 2 || len(body.Events) != 2 {
		t.Errorf("got %d events (total %d), want 2", len(body.Events), body.Total)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/events?limit=0", "admin", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: code = %d, want 400", rec.Code)
	}
}

func TestRunbookEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/runbooks/", "admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/runbooks/data_breach", "admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/runbooks/phishing", "admin", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown class: code = %d, want 404", rec.Code)
	}
}

func TestSuperAdminInheritsAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/security/stats", "super_admin", "")
	if rec.Code != http.StatusOK {
		t.Errorf("super_admin: status = %d, want 200", rec.Code)
	}
}
