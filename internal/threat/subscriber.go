// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package threat

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/incident"
	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// IncidentOpener opens incidents for matched patterns. The incident
// manager satisfies this.
type IncidentOpener interface {
	Create(ctx context.Context, incidentType string, severity event.Severity, description string, evidence []map[string]any) (*incident.Incident, error)
}

// AnalyzerConfig holds configuration for the batch analyzer.
type AnalyzerConfig struct {
	// Topic is the pub/sub topic the monitor publishes batches on.
	Topic string `json:"topic"`

	// Retention bounds how long events stay in the analysis buffer.
	// Must cover the widest pattern window (geo anomaly, 24h).
	Retention time.Duration `json:"retention"`

	// MaxBuffer caps the analysis buffer size.
	MaxBuffer int `json:"max_buffer"`

	// Cooldown suppresses repeat incidents for the same pattern and
	// subject. Without it every subsequent batch from an ongoing attack
	// would open a fresh incident.
	Cooldown time.Duration `json:"cooldown"`
}

// DefaultAnalyzerConfig returns sensible defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		Topic:     "security.events",
		Retention: 24 * time.Hour,
		MaxBuffer: 50000,
		Cooldown:  15 * time.Minute,
	}
}

// Analyzer consumes flushed event batches from the monitor's topic and
// runs the pattern catalog over a rolling window of recent events. Each
// match opens an incident, subject to a per-pattern cooldown.
type Analyzer struct {
	config     AnalyzerConfig
	subscriber message.Subscriber
	engine     *Engine
	incidents  IncidentOpener

	// buffer holds recent events, oldest first. Only the Serve
	// goroutine touches it.
	buffer []event.Event

	// lastOpened tracks incident cooldowns, keyed by pattern+subject.
	lastOpened map[string]time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewAnalyzer creates a batch analyzer. incidents may be nil to run in
// detect-only mode.
func NewAnalyzer(config AnalyzerConfig, subscriber message.Subscriber, engine *Engine, incidents IncidentOpener) *Analyzer {
	if config.Topic == "" {
		config.Topic = "security.events"
	}
	if config.Retention == 0 {
		config.Retention = 24 * time.Hour
	}
	if config.MaxBuffer == 0 {
		config.MaxBuffer = 50000
	}
	if config.Cooldown == 0 {
		config.Cooldown = 15 * time.Minute
	}

	return &Analyzer{
		config:     config,
		subscriber: subscriber,
		engine:     engine,
		incidents:  incidents,
		lastOpened: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Serve consumes batches until the context is canceled. Shaped for
// suture supervision.
func (a *Analyzer) Serve(ctx context.Context) error {
	messages, err := a.subscriber.Subscribe(ctx, a.config.Topic)
	if err != nil {
		return err
	}

	logging.Info().Str("topic", a.config.Topic).Msg("Threat analyzer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			a.handleMessage(ctx, msg)
			msg.Ack()
		}
	}
}

// String implements suture's service naming.
func (a *Analyzer) String() string {
	return "threat-analyzer"
}

func (a *Analyzer) handleMessage(ctx context.Context, msg *message.Message) {
	batch, err := event.UnmarshalBatch(msg.Payload)
	if err != nil {
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to decode event batch")
		return
	}
	if len(batch) == 0 {
		return
	}

	a.absorb(batch)
	a.analyzeBatch(ctx, batch)
}

// absorb appends the batch to the rolling buffer and prunes expired and
// overflow entries.
func (a *Analyzer) absorb(batch []event.Event) {
	a.buffer = append(a.buffer, batch...)

	cutoff := a.now().Add(-a.config.Retention)
	keep := 0
	for keep < len(a.buffer) && a.buffer[keep].Timestamp.Before(cutoff) {
		keep++
	}
	a.buffer = a.buffer[keep:]

	if overflow := len(a.buffer) - a.config.MaxBuffer; overflow > 0 {
		a.buffer = a.buffer[overflow:]
	}
}

// analyzeBatch runs the catalog once per distinct subject seen in the
// batch. Engine-emitted events are not subjects themselves, otherwise
// every detection would trigger a re-analysis of its own output.
func (a *Analyzer) analyzeBatch(ctx context.Context, batch []event.Event) {
	now := a.now()
	ips := make(map[string]struct{})
	users := make(map[string]struct{})

	for i := range batch {
		if batch[i].Source == "threat_detection" {
			continue
		}
		if ip := batch[i].IPAddress; ip != "" && ip != "unknown" {
			ips[ip] = struct{}{}
		}
		if uid := batch[i].UserID; uid != "" {
			users[uid] = struct{}{}
		}
	}

	for ip := range ips {
		a.analyze(ctx, Context{IP: ip, Timestamp: now})
	}
	for uid := range users {
		a.analyze(ctx, Context{UserID: uid, Timestamp: now})
	}
}

func (a *Analyzer) analyze(ctx context.Context, tctx Context) {
	matches := a.engine.Analyze(ctx, a.buffer, tctx)
	if len(matches) == 0 {
		return
	}

	for _, p := range matches {
		a.openIncident(ctx, p, tctx)
	}
	a.engine.Respond(ctx, matches, tctx)
}

// openIncident creates an incident for a match unless one was opened
// for the same pattern and subject within the cooldown.
func (a *Analyzer) openIncident(ctx context.Context, p Pattern, tctx Context) {
	if a.incidents == nil {
		return
	}

	key := p.Name + "|" + tctx.UserID + "|" + tctx.IP
	now := a.now()
	if opened, ok := a.lastOpened[key]; ok && now.Sub(opened) < a.config.Cooldown {
		return
	}
	a.lastOpened[key] = now

	evidence := []map[string]any{{
		"pattern": p.Name,
		"user_id": tctx.UserID,
		"ip":      tctx.IP,
	}}
	if _, err := a.incidents.Create(ctx, p.Name, p.Severity, p.Description, evidence); err != nil {
		logging.Error().Err(err).Str("pattern", p.Name).Msg("Failed to open incident")
	}
}
