// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/incident"
)

// dialTestClient upgrades one connection against a running hub and
// returns the client side.
func dialTestClient(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for hub.ClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHubBroadcastsIncidents(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	conn := dialTestClient(t, hub)
	waitForClients(t, hub, 1)

	hub.BroadcastIncident(&incident.Incident{
		ID:       "INC-1-abc",
		Type:     "Brute Force Attack",
		Severity: event.SeverityHigh,
		Status:   incident.StatusOpen,
	})

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != MessageTypeIncident {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypeIncident)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["id"] != "INC-1-abc" {
		t.Errorf("message data = %#v, want incident INC-1-abc", msg.Data)
	}
}

func TestHubSendsAnomalyAlerts(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	conn := dialTestClient(t, hub)
	waitForClients(t, hub, 1)

	anomalies := []event.Anomaly{{
		Kind:        event.AnomalyMultipleFailedLogins,
		Description: "Multiple failed login attempts in a single batch",
		Count:       7,
		DetectedAt:  time.Now(),
	}}
	if err := hub.SendAnomalyAlert(context.Background(), anomalies); err != nil {
		t.Fatalf("SendAnomalyAlert: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != MessageTypeAnomaly {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypeAnomaly)
	}
}

func TestHubRespondsToClientPing(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	conn := dialTestClient(t, hub)
	waitForClients(t, hub, 1)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != MessageTypePong {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypePong)
	}
}

func TestHubDisconnectCleanup(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	conn := dialTestClient(t, hub)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
