// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package event

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes event batches to a NATS subject, for deployments
// that stream security events into an existing messaging backbone
// instead of an HTTP ingestion endpoint.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink creates a NATS-backed sink. The connection is owned by
// the caller.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = "sentinel.events"
	}

	return &NATSSink{
		conn:    conn,
		subject: subject,
	}
}

// Name identifies the sink in logs.
func (s *NATSSink) Name() string {
	return "nats"
}

// SubmitBatch publishes one batch on the configured subject.
func (s *NATSSink) SubmitBatch(ctx context.Context, events []Event) error {
	payload, err := MarshalBatch(events)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	if err := s.conn.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}

	// Publish is async; flush so sink failures surface to the monitor's
	// re-queue path instead of being lost in the client buffer.
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush connection: %w", err)
	}

	return nil
}
