// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arcadia-commerce/sentinel/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are enforced by the CORS middleware in front of
	// the admin router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a websocket connection and
// registers the client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := NewClient(h, conn)
	h.register <- client
	client.Start()
}
