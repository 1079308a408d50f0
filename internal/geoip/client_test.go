// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientIPJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"203.0.113.42"}`))
	}))
	defer server.Close()

	c := NewClient(Config{LookupURL: server.URL})

	ip, err := c.ClientIP(context.Background())
	if err != nil {
		t.Fatalf("ClientIP: %v", err)
	}
	if ip != "203.0.113.42" {
		t.Errorf("ip = %q, want 203.0.113.42", ip)
	}
}

func TestClientIPPlainResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.42\n"))
	}))
	defer server.Close()

	c := NewClient(Config{LookupURL: server.URL})

	ip, err := c.ClientIP(context.Background())
	if err != nil {
		t.Fatalf("ClientIP: %v", err)
	}
	if ip != "203.0.113.42" {
		t.Errorf("ip = %q, want 203.0.113.42", ip)
	}
}

func TestClientIPFallsBackToUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(Config{LookupURL: server.URL})

	ip, err := c.ClientIP(context.Background())
	if err == nil {
		t.Fatal("expected an error for failing endpoint")
	}
	if ip != UnknownIP {
		t.Errorf("ip = %q, want %q", ip, UnknownIP)
	}
}

func TestClientIPCaches(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"ip":"203.0.113.42"}`))
	}))
	defer server.Close()

	c := NewClient(Config{LookupURL: server.URL, CacheTTL: time.Hour})

	for i := 0; i < 5; i++ {
		if _, err := c.ClientIP(context.Background()); err != nil {
			t.Fatalf("ClientIP: %v", err)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("lookup calls = %d, want 1 (cached)", calls.Load())
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(Config{LookupURL: server.URL})

	for i := 0; i < 10; i++ {
		c.ClientIP(context.Background())
	}

	// The breaker trips after 3 consecutive failures; remaining calls
	// fail fast without hitting the endpoint.
	if calls.Load() != 3 {
		t.Errorf("endpoint calls = %d, want 3 before breaker opens", calls.Load())
	}
}
