// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package config loads the Sentinel configuration with layered
// sources: struct defaults, an optional YAML file, then SENTINEL_*
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server" json:"server"`
	Logging   LoggingConfig   `koanf:"logging" json:"logging"`
	Limiters  LimitersConfig  `koanf:"limiters" json:"limiters"`
	Monitor   MonitorConfig   `koanf:"monitor" json:"monitor"`
	Sink      SinkConfig      `koanf:"sink" json:"sink"`
	Events    EventsConfig    `koanf:"events" json:"events"`
	GeoIP     GeoIPConfig     `koanf:"geoip" json:"geoip"`
	Incidents IncidentsConfig `koanf:"incidents" json:"incidents"`
	Authz     AuthzConfig     `koanf:"authz" json:"authz"`
	NATS      NATSConfig      `koanf:"nats" json:"nats"`
	WebSocket WebSocketConfig `koanf:"websocket" json:"websocket"`
	Alerts    AlertsConfig    `koanf:"alerts" json:"alerts"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host" json:"host" validate:"required"`
	Port            int           `koanf:"port" json:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" json:"timeout" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins" json:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" json:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" json:"rate_limit_window" validate:"min=1s"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" json:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller" json:"caller"`
}

// LimiterConfig configures one named rate limiter.
type LimiterConfig struct {
	MaxAttempts     int           `koanf:"max_attempts" json:"max_attempts" validate:"min=1"`
	Window          time.Duration `koanf:"window" json:"window" validate:"min=1s"`
	BlockDuration   time.Duration `koanf:"block_duration" json:"block_duration" validate:"min=1s"`
	Progressive     bool          `koanf:"progressive" json:"progressive"`
	IPBlockDuration time.Duration `koanf:"ip_block_duration" json:"ip_block_duration" validate:"min=1m"`
}

// LimitersConfig holds the three scoped limiters.
type LimitersConfig struct {
	Auth  LimiterConfig `koanf:"auth" json:"auth"`
	API   LimiterConfig `koanf:"api" json:"api"`
	Admin LimiterConfig `koanf:"admin" json:"admin"`
}

// MonitorConfig configures the security event monitor.
type MonitorConfig struct {
	FlushInterval time.Duration `koanf:"flush_interval" json:"flush_interval" validate:"min=1s"`
	MaxQueue      int           `koanf:"max_queue" json:"max_queue" validate:"min=1"`
	BatchTopic    string        `koanf:"batch_topic" json:"batch_topic" validate:"required"`
}

// SinkConfig selects where flushed event batches go.
type SinkConfig struct {
	Type          string        `koanf:"type" json:"type" validate:"oneof=store http nats"`
	URL           string        `koanf:"url" json:"url" validate:"required_if=Type http"`
	Subject       string        `koanf:"subject" json:"subject"`
	RatePerSecond float64       `koanf:"rate_per_second" json:"rate_per_second" validate:"min=0"`
	Timeout       time.Duration `koanf:"timeout" json:"timeout" validate:"min=1s"`
}

// EventsConfig configures the durable event store.
type EventsConfig struct {
	Store      string `koanf:"store" json:"store" validate:"oneof=memory duckdb"`
	DuckDBPath string `koanf:"duckdb_path" json:"duckdb_path" validate:"required_if=Store duckdb"`
}

// GeoIPConfig configures the client IP resolver.
type GeoIPConfig struct {
	Enabled   bool          `koanf:"enabled" json:"enabled"`
	LookupURL string        `koanf:"lookup_url" json:"lookup_url"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout" validate:"min=1s"`
	CacheTTL  time.Duration `koanf:"cache_ttl" json:"cache_ttl" validate:"min=1s"`
}

// IncidentsConfig configures incident storage and retention.
type IncidentsConfig struct {
	Store         string        `koanf:"store" json:"store" validate:"oneof=memory badger"`
	BadgerPath    string        `koanf:"badger_path" json:"badger_path" validate:"required_if=Store badger"`
	Retention     time.Duration `koanf:"retention" json:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval" validate:"min=1m"`
}

// AuthzConfig configures the Casbin enforcer.
type AuthzConfig struct {
	ModelPath    string        `koanf:"model_path" json:"model_path"`
	PolicyPath   string        `koanf:"policy_path" json:"policy_path"`
	DefaultRole  string        `koanf:"default_role" json:"default_role" validate:"required"`
	CacheEnabled bool          `koanf:"cache_enabled" json:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl" json:"cache_ttl" validate:"min=1s"`
}

// NATSConfig configures the optional NATS event sink connection.
type NATSConfig struct {
	URL string `koanf:"url" json:"url"`
}

// WebSocketConfig configures the incident broadcast hub.
type WebSocketConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`
}

// AlertsConfig configures the anomaly webhook. Anomalies always reach
// websocket clients when the hub is enabled; the webhook adds an
// external notification channel.
type AlertsConfig struct {
	WebhookURL string        `koanf:"webhook_url" json:"webhook_url"`
	Timeout    time.Duration `koanf:"timeout" json:"timeout" validate:"min=1s"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8642,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Limiters: LimitersConfig{
			Auth: LimiterConfig{
				MaxAttempts:     5,
				Window:          15 * time.Minute,
				BlockDuration:   15 * time.Minute,
				Progressive:     true,
				IPBlockDuration: time.Hour,
			},
			API: LimiterConfig{
				MaxAttempts:     100,
				Window:          time.Minute,
				BlockDuration:   5 * time.Minute,
				Progressive:     false,
				IPBlockDuration: time.Hour,
			},
			Admin: LimiterConfig{
				MaxAttempts:     10,
				Window:          10 * time.Minute,
				BlockDuration:   30 * time.Minute,
				Progressive:     true,
				IPBlockDuration: time.Hour,
			},
		},
		Monitor: MonitorConfig{
			FlushInterval: 10 * time.Second,
			MaxQueue:      10000,
			BatchTopic:    "security.events",
		},
		Sink: SinkConfig{
			Type:          "store",
			Subject:       "sentinel.events",
			RatePerSecond: 0,
			Timeout:       10 * time.Second,
		},
		Events: EventsConfig{
			Store:      "memory",
			DuckDBPath: "/data/sentinel.duckdb",
		},
		GeoIP: GeoIPConfig{
			Enabled:   false,
			LookupURL: "",
			Timeout:   5 * time.Second,
			CacheTTL:  time.Minute,
		},
		Incidents: IncidentsConfig{
			Store:         "memory",
			BadgerPath:    "/data/incidents",
			Retention:     30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Authz: AuthzConfig{
			DefaultRole:  "customer",
			CacheEnabled: true,
			CacheTTL:     5 * time.Minute,
		},
		NATS: NATSConfig{
			URL: "nats://127.0.0.1:4222",
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
		},
		Alerts: AlertsConfig{
			WebhookURL: "",
			Timeout:    10 * time.Second,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Sink.Type == "nats" && c.NATS.URL == "" {
		return fmt.Errorf("sink type nats requires nats.url")
	}
	return nil
}
