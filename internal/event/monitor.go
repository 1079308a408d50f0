// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package event

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// Monitor queues security events and flushes them in batches to a sink.
// A single worker goroutine owns flushing, so batches are never
// submitted concurrently.
type Monitor struct {
	config   Config
	sink     Sink
	alerter  Alerter
	resolver ClientIPResolver

	// publisher, when set, receives each flushed batch on
	// config.BatchTopic for downstream threat analysis.
	publisher message.Publisher

	mu    sync.Mutex
	queue []Event

	flushCh chan struct{}

	// now is injectable for tests.
	now func() time.Time
}

// Config holds configuration for the monitor.
type Config struct {
	// FlushInterval is how often queued events are flushed.
	FlushInterval time.Duration `json:"flush_interval"`

	// MaxQueue bounds the in-memory queue; events beyond it are dropped
	// with a warning rather than growing without limit.
	MaxQueue int `json:"max_queue"`

	// BatchTopic is the pub/sub topic flushed batches are published on.
	BatchTopic string `json:"batch_topic"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 10 * time.Second,
		MaxQueue:      10000,
		BatchTopic:    "security.events",
	}
}

// NewMonitor creates a monitor. The alerter, resolver, and publisher
// are optional; pass nil to disable the corresponding behavior.
func NewMonitor(config Config, sink Sink, alerter Alerter, resolver ClientIPResolver, publisher message.Publisher) *Monitor {
	if config.FlushInterval == 0 {
		config.FlushInterval = 10 * time.Second
	}
	if config.MaxQueue == 0 {
		config.MaxQueue = 10000
	}
	if config.BatchTopic == "" {
		config.BatchTopic = "security.events"
	}

	return &Monitor{
		config:    config,
		sink:      sink,
		alerter:   alerter,
		resolver:  resolver,
		publisher: publisher,
		flushCh:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Log enriches and enqueues a security event. It never blocks and never
// returns an error; a full queue drops the event with a warning.
func (m *Monitor) Log(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	if e.IPAddress == "" {
		e.IPAddress = m.resolveIP(ctx)
	}

	m.mu.Lock()
	if len(m.queue) >= m.config.MaxQueue {
		m.mu.Unlock()
		logging.Warn().Str("event_id", e.ID).Str("type", string(e.Type)).Msg("Event queue full, dropping event")
		return
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	eventsQueued.WithLabelValues(string(e.Type)).Inc()

	// Nudge the worker; a pending signal is enough.
	select {
	case m.flushCh <- struct{}{}:
	default:
	}
}

// resolveIP looks up the client address, falling back to "unknown".
func (m *Monitor) resolveIP(ctx context.Context) string {
	if m.resolver == nil {
		return "unknown"
	}

	ip, err := m.resolver.ClientIP(ctx)
	if err != nil || ip == "" {
		logging.Debug().Err(err).Msg("Client IP resolution failed")
		return "unknown"
	}
	return ip
}

// QueueLen returns the number of events waiting for the next flush.
func (m *Monitor) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Serve runs the flush worker until the context is canceled. It is
// shaped for suture supervision: it blocks, and returns ctx.Err() on
// orderly shutdown after a final drain.
func (m *Monitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.config.FlushInterval)
	defer ticker.Stop()

	logging.Info().Dur("interval", m.config.FlushInterval).Msg("Event monitor started")

	for {
		select {
		case <-ctx.Done():
			// Final drain with a detached context so queued events are
			// not lost on shutdown.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.Flush(drainCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			m.Flush(ctx)
		case <-m.flushCh:
			m.Flush(ctx)
		}
	}
}

// String implements suture's service naming.
func (m *Monitor) String() string {
	return "event-monitor"
}

// Flush submits all currently queued events as one batch. On sink
// failure the batch is re-queued at the front for the next attempt;
// errors are logged, never returned to callers of Log.
func (m *Monitor) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := m.sink.SubmitBatch(ctx, batch); err != nil {
		flushFailures.Inc()
		logging.Error().Err(err).Str("sink", m.sink.Name()).Int("count", len(batch)).Msg("Batch submission failed, re-queueing")

		m.mu.Lock()
		m.queue = append(batch, m.queue...)
		m.mu.Unlock()
		return
	}

	eventsFlushed.Add(float64(len(batch)))

	m.publishBatch(batch)

	if anomalies := m.detectAnomalies(batch); len(anomalies) > 0 {
		m.alert(ctx, anomalies)
	}
}

// publishBatch forwards the flushed batch to the pub/sub topic.
func (m *Monitor) publishBatch(batch []Event) {
	if m.publisher == nil {
		return
	}

	payload, err := MarshalBatch(batch)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal event batch")
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := m.publisher.Publish(m.config.BatchTopic, msg); err != nil {
		logging.Error().Err(err).Str("topic", m.config.BatchTopic).Msg("Failed to publish event batch")
	}
}

// detectAnomalies runs the batch heuristics and returns anything that
// fired.
func (m *Monitor) detectAnomalies(batch []Event) []Anomaly {
	now := m.now()
	var anomalies []Anomaly

	if a := m.detectMultipleFailedLogins(batch, now); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := m.detectUnusualAccessPattern(batch, now); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := m.detectRapidRequests(batch, now); a != nil {
		anomalies = append(anomalies, *a)
	}

	for _, a := range anomalies {
		anomaliesDetected.WithLabelValues(string(a.Kind)).Inc()
	}

	return anomalies
}

// detectMultipleFailedLogins fires on >=5 login failures in one batch.
func (m *Monitor) detectMultipleFailedLogins(batch []Event, now time.Time) *Anomaly {
	count := 0
	for i := range batch {
		if batch[i].Type == TypeLoginFailure {
			count++
		}
	}

	if count < 5 {
		return nil
	}

	return &Anomaly{
		Kind:        AnomalyMultipleFailedLogins,
		Description: "Multiple failed login attempts in a single batch",
		Count:       count,
		DetectedAt:  now,
	}
}

// detectUnusualAccessPattern fires when admin access originates from
// more than 3 distinct IPs in one batch.
func (m *Monitor) detectUnusualAccessPattern(batch []Event, now time.Time) *Anomaly {
	ips := make(map[string]struct{})
	for i := range batch {
		if batch[i].Type == TypeAdminAccess && batch[i].IPAddress != "" {
			ips[batch[i].IPAddress] = struct{}{}
		}
	}

	if len(ips) <= 3 {
		return nil
	}

	return &Anomaly{
		Kind:        AnomalyUnusualAccessPattern,
		Description: "Admin access from an unusual number of distinct IPs",
		Count:       len(ips),
		DetectedAt:  now,
	}
}

// detectRapidRequests fires on >=10 events spanning under 60 seconds.
//
// LEGACY: the span is measured against the wall clock at flush time,
// not between event timestamps. Events enqueued long before a delayed
// flush therefore fall outside the window even if they were recorded
// within one second of each other. This mirrors the behavior of the
// system this module was ported from; do not silently change it.
func (m *Monitor) detectRapidRequests(batch []Event, now time.Time) *Anomaly {
	count := 0
	for i := range batch {
		if now.Sub(batch[i].Timestamp) < time.Minute {
			count++
		}
	}

	if count < 10 {
		return nil
	}

	return &Anomaly{
		Kind:        AnomalyRapidRequests,
		Description: "Rapid event rate within the last minute",
		Count:       count,
		DetectedAt:  now,
	}
}

// alert forwards anomalies to the alerter.
func (m *Monitor) alert(ctx context.Context, anomalies []Anomaly) {
	if m.alerter == nil {
		return
	}

	if err := m.alerter.SendAnomalyAlert(ctx, anomalies); err != nil {
		logging.Error().Err(err).Int("count", len(anomalies)).Msg("Failed to send anomaly alert")
	}
}
