// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsQueued counts events accepted into the queue, by type.
	eventsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_security_events_queued_total",
			Help: "Total number of security events queued",
		},
		[]string{"type"},
	)

	// eventsFlushed counts events successfully submitted to the sink.
	eventsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_security_events_flushed_total",
			Help: "Total number of security events flushed to the sink",
		},
	)

	// flushFailures counts failed batch submissions.
	flushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_security_event_flush_failures_total",
			Help: "Total number of failed batch submissions",
		},
	)

	// anomaliesDetected counts batch anomalies by kind.
	anomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_security_anomalies_detected_total",
			Help: "Total number of batch anomalies detected",
		},
		[]string{"kind"},
	)
)
