// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package event

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// HTTPSink submits event batches to a remote log ingestion endpoint.
// Submissions run through a circuit breaker so a dead endpoint fails
// fast instead of stalling every flush, and a rate limiter paces
// submissions to the endpoint.
type HTTPSink struct {
	url     string
	headers map[string]string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[any]
	pacer   *rate.Limiter
}

// HTTPSinkConfig configures the HTTP batch sink.
type HTTPSinkConfig struct {
	// URL is the batch ingestion endpoint.
	URL string `json:"url"`

	// Headers are added to every request (e.g. authorization).
	Headers map[string]string `json:"headers,omitempty"`

	// Timeout bounds each submission request.
	Timeout time.Duration `json:"timeout"`

	// MaxBatchesPerSecond paces submissions; 0 means unpaced.
	MaxBatchesPerSecond float64 `json:"max_batches_per_second"`
}

// NewHTTPSink creates an HTTP batch sink.
func NewHTTPSink(config HTTPSinkConfig) *HTTPSink {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	pace := rate.Inf
	if config.MaxBatchesPerSecond > 0 {
		pace = rate.Limit(config.MaxBatchesPerSecond)
	}

	settings := gobreaker.Settings{
		Name:    "event-sink",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Event sink circuit state changed")
		},
	}

	return &HTTPSink{
		url:     config.URL,
		headers: config.Headers,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		pacer:   rate.NewLimiter(pace, 1),
	}
}

// Name identifies the sink in logs.
func (s *HTTPSink) Name() string {
	return "http"
}

// SubmitBatch delivers one batch to the ingestion endpoint.
func (s *HTTPSink) SubmitBatch(ctx context.Context, events []Event) error {
	if err := s.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}

	body, err := MarshalBatch(events)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	_, err = s.breaker.Execute(func() (any, error) {
		return nil, s.post(ctx, body)
	})
	return err
}

// post performs the HTTP submission.
func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("log sink returned status %d", resp.StatusCode)
	}

	return nil
}
