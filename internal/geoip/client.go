// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package geoip resolves the caller's public IP address via an external
// lookup service. Lookups run through a circuit breaker and are cached
// briefly; failures degrade to the "unknown" sentinel rather than
// propagating.
package geoip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// UnknownIP is the fallback value when resolution fails.
const UnknownIP = "unknown"

// Config holds configuration for the lookup client.
type Config struct {
	// LookupURL is the IP resolution endpoint. The response may be a
	// bare address or a JSON object with an "ip" field.
	LookupURL string `json:"lookup_url"`

	// Timeout bounds each lookup request.
	Timeout time.Duration `json:"timeout"`

	// CacheTTL is how long a resolved address is reused.
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LookupURL: "https://api.ipify.org?format=json",
		Timeout:   5 * time.Second,
		CacheTTL:  time.Minute,
	}
}

// Client resolves the public client IP address.
type Client struct {
	config  Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]

	mu       sync.Mutex
	cached   string
	cachedAt time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewClient creates a lookup client.
func NewClient(config Config) *Client {
	if config.LookupURL == "" {
		config.LookupURL = DefaultConfig().LookupURL
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Minute
	}

	settings := gobreaker.Settings{
		Name:    "geoip-lookup",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("IP lookup circuit state changed")
		},
	}

	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker[string](settings),
		now:     time.Now,
	}
}

// ClientIP returns the caller's public IP address, or UnknownIP with a
// non-nil error when resolution fails.
func (c *Client) ClientIP(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cached != "" && c.now().Sub(c.cachedAt) < c.config.CacheTTL {
		ip := c.cached
		c.mu.Unlock()
		return ip, nil
	}
	c.mu.Unlock()

	ip, err := c.breaker.Execute(func() (string, error) {
		return c.lookup(ctx)
	})
	if err != nil {
		return UnknownIP, err
	}

	c.mu.Lock()
	c.cached = ip
	c.cachedAt = c.now()
	c.mu.Unlock()

	return ip, nil
}

// lookup performs one HTTP resolution request.
func (c *Client) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.LookupURL, nil)
	if err != nil {
		return "", fmt.Errorf("create lookup request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ip lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read lookup response: %w", err)
	}

	ip := parseLookupResponse(body)
	if ip == "" {
		return "", fmt.Errorf("empty lookup response")
	}

	return ip, nil
}

// parseLookupResponse accepts either a JSON {"ip": "..."} object or a
// bare address.
func parseLookupResponse(body []byte) string {
	var parsed struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.IP != "" {
		return parsed.IP
	}
	return strings.TrimSpace(string(body))
}
