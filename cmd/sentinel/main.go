// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package main is the entry point for the Sentinel security service.
//
// Sentinel is the storefront's security core: it rate-limits login and
// API activity with progressive blocking, collects security events into
// batches, scans them for anomalies and threat patterns, and tracks the
// resulting incidents. An admin API exposes limiter statistics,
// incident management, event queries, and a websocket feed for live
// dashboards.
//
// # Application Architecture
//
// The service initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, SENTINEL_* env (Koanf v2)
//  2. Stores: DuckDB event trail and BadgerDB incident store (both optional)
//  3. Pipeline: event monitor -> pub/sub batch topic -> threat analyzer
//  4. WebSocket hub: incident and anomaly broadcast to dashboards
//  5. Admin API: Chi router with Casbin capability checks
//
// Everything long-lived runs under a suture supervisor tree, so a
// crashed service restarts without taking down the rest.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (SENTINEL_ prefix)
//   - Config file (sentinel.yaml, or SENTINEL_CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The service handles graceful shutdown on SIGINT and SIGTERM: the
// supervisor tree stops all services, the monitor drains its queue, and
// the stores are closed.
package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	badger "github.com/dgraph-io/badger/v4"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/nats-io/nats.go"

	"github.com/arcadia-commerce/sentinel/internal/api"
	"github.com/arcadia-commerce/sentinel/internal/authz"
	"github.com/arcadia-commerce/sentinel/internal/config"
	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/geoip"
	"github.com/arcadia-commerce/sentinel/internal/incident"
	"github.com/arcadia-commerce/sentinel/internal/logging"
	"github.com/arcadia-commerce/sentinel/internal/ratelimit"
	"github.com/arcadia-commerce/sentinel/internal/supervisor"
	"github.com/arcadia-commerce/sentinel/internal/threat"
	"github.com/arcadia-commerce/sentinel/internal/ws"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("sink", cfg.Sink.Type).
		Str("event_store", cfg.Events.Store).
		Str("incident_store", cfg.Incidents.Store).
		Msg("Starting Sentinel")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rate limiters, one per scope.
	limiters := map[string]*ratelimit.Limiter{
		"auth":  newLimiter("auth", cfg.Limiters.Auth),
		"api":   newLimiter("api", cfg.Limiters.API),
		"admin": newLimiter("admin", cfg.Limiters.Admin),
	}
	for _, limiter := range limiters {
		limiter.StartCleanupRoutine(ctx)
	}

	// Client IP resolver for event enrichment.
	var resolver event.ClientIPResolver
	if cfg.GeoIP.Enabled {
		resolver = geoip.NewClient(geoip.Config{
			LookupURL: cfg.GeoIP.LookupURL,
			Timeout:   cfg.GeoIP.Timeout,
			CacheTTL:  cfg.GeoIP.CacheTTL,
		})
	}

	// Event sink and the queryable trail behind the admin API.
	var (
		eventStore event.Store
		sink       event.Sink
	)
	switch cfg.Sink.Type {
	case "store":
		store, closeStore := buildEventStore(ctx, cfg)
		defer closeStore()
		eventStore = store
		sink = eventStore
	case "http":
		sink = event.NewHTTPSink(event.HTTPSinkConfig{
			URL:                 cfg.Sink.URL,
			Timeout:             cfg.Sink.Timeout,
			MaxBatchesPerSecond: cfg.Sink.RatePerSecond,
		})
	case "nats":
		conn, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			logging.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer conn.Close()
		sink = event.NewNATSSink(conn, cfg.Sink.Subject)
	default:
		logging.Fatal().Str("type", cfg.Sink.Type).Msg("Unknown sink type")
	}

	// WebSocket hub for live incident and anomaly feeds.
	var hub *ws.Hub
	if cfg.WebSocket.Enabled {
		hub = ws.NewHub()
	}

	// Incident manager with the configured store. The hub, when
	// enabled, receives every new incident.
	incidentStore, closeIncidents := buildIncidentStore(cfg)
	defer closeIncidents()

	var broadcaster incident.Broadcaster
	if hub != nil {
		broadcaster = hub
	}
	incidents := incident.NewManager(incident.Config{
		Retention:     cfg.Incidents.Retention,
		SweepInterval: cfg.Incidents.SweepInterval,
	}, incidentStore, broadcaster)
	incidents.StartRetentionRoutine(ctx)

	// In-process pub/sub carries flushed batches from the monitor to
	// the threat analyzer.
	slogLogger := logging.NewSlogLogger()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(slogLogger))
	defer pubSub.Close()

	var alerters event.MultiAlerter
	if hub != nil {
		alerters = append(alerters, hub)
	}
	if cfg.Alerts.WebhookURL != "" {
		alerters = append(alerters, event.NewWebhookAlerter(event.WebhookAlerterConfig{
			WebhookURL: cfg.Alerts.WebhookURL,
			Enabled:    true,
			Timeout:    cfg.Alerts.Timeout,
		}))
	}
	var alerter event.Alerter
	if len(alerters) > 0 {
		alerter = alerters
	}
	monitor := event.NewMonitor(event.Config{
		FlushInterval: cfg.Monitor.FlushInterval,
		MaxQueue:      cfg.Monitor.MaxQueue,
		BatchTopic:    cfg.Monitor.BatchTopic,
	}, sink, alerter, resolver, pubSub)

	engine := threat.NewEngine(monitor)
	analyzerCfg := threat.DefaultAnalyzerConfig()
	analyzerCfg.Topic = cfg.Monitor.BatchTopic
	analyzer := threat.NewAnalyzer(analyzerCfg, pubSub, engine, incidents)

	// Casbin enforcer guards the admin API.
	enforcer, err := authz.NewEnforcer(authz.Config{
		ModelPath:    cfg.Authz.ModelPath,
		PolicyPath:   cfg.Authz.PolicyPath,
		DefaultRole:  cfg.Authz.DefaultRole,
		CacheEnabled: cfg.Authz.CacheEnabled,
		CacheTTL:     cfg.Authz.CacheTTL,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create authorization enforcer")
	}
	defer enforcer.Close()

	handler := api.NewHandler(limiters, incidents, eventStore)

	var wsHandler api.WebsocketHandler
	if hub != nil {
		wsHandler = hub
	}
	server := api.NewServer(cfg.Server, handler, enforcer, wsHandler)

	// Supervisor tree: pipeline services restart independently of the
	// admin API.
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	tree.AddPipelineService(monitor)
	tree.AddPipelineService(analyzer)
	if hub != nil {
		tree.AddAPIService(hub)
	}
	tree.AddAPIService(server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Sentinel stopped gracefully")
}

// newLimiter builds one scoped limiter from configuration.
func newLimiter(name string, cfg config.LimiterConfig) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Name:            name,
		MaxAttempts:     cfg.MaxAttempts,
		Window:          cfg.Window,
		BlockDuration:   cfg.BlockDuration,
		Progressive:     cfg.Progressive,
		IPBlockDuration: cfg.IPBlockDuration,
	})
}

// buildEventStore opens the configured queryable event store and
// returns it with its close function.
func buildEventStore(ctx context.Context, cfg *config.Config) (event.Store, func()) {
	switch cfg.Events.Store {
	case "duckdb":
		db, err := sql.Open("duckdb", cfg.Events.DuckDBPath)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Events.DuckDBPath).Msg("Failed to open DuckDB")
		}
		store := event.NewDuckDBStore(db)
		if err := store.CreateTable(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to create events table")
		}
		logging.Info().Str("path", cfg.Events.DuckDBPath).Msg("DuckDB event store ready")
		return store, func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing DuckDB")
			}
		}
	default:
		return event.NewMemoryStore(), func() {}
	}
}

// buildIncidentStore opens the configured incident store and returns it
// with its close function.
func buildIncidentStore(cfg *config.Config) (incident.Store, func()) {
	switch cfg.Incidents.Store {
	case "badger":
		opts := badger.DefaultOptions(cfg.Incidents.BadgerPath).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Incidents.BadgerPath).Msg("Failed to open Badger")
		}
		logging.Info().Str("path", cfg.Incidents.BadgerPath).Msg("Badger incident store ready")
		return incident.NewBadgerStore(db), func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing Badger")
			}
		}
	default:
		return incident.NewMemoryStore(), func() {}
	}
}
