// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package ws implements the live admin feed: a websocket hub that
// broadcasts opened incidents and anomaly alerts to connected
// dashboard clients.
package ws

import (
	"context"
	"sort"
	"sync"

	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/incident"
	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// Message types pushed to dashboard clients.
const (
	MessageTypeIncident = "incident"
	MessageTypeAnomaly  = "anomaly"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

// Message is the envelope for all hub traffic.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of connected clients and fans broadcasts out
// to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
}

// NewHub creates an idle hub. Call Serve to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Serve runs the hub until the context is cancelled, then closes all
// clients and returns the context error. Suture restarts it on
// failure.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Str("component", "ws-hub").Msg("Websocket hub stopped")
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("Websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("Websocket client disconnected")

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *Hub) String() string { return "ws-hub" }

// send delivers a message to every connected client. Clients whose
// send buffer is full are dropped; a stalled dashboard must not block
// the hub.
func (h *Hub) send(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	// Stable delivery order keeps tests reproducible.
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastIncident pushes a newly opened incident to all clients.
// Satisfies incident.Broadcaster.
func (h *Hub) BroadcastIncident(inc *incident.Incident) {
	select {
	case h.broadcast <- Message{Type: MessageTypeIncident, Data: inc}:
	default:
		logging.Warn().Msg("Broadcast channel full, dropping incident message")
	}
}

// SendAnomalyAlert pushes detected anomalies to all clients.
// Satisfies event.Alerter.
func (h *Hub) SendAnomalyAlert(ctx context.Context, anomalies []event.Anomaly) error {
	select {
	case h.broadcast <- Message{Type: MessageTypeAnomaly, Data: anomalies}:
		return nil
	default:
		logging.Warn().Msg("Broadcast channel full, dropping anomaly message")
		return nil
	}
}
