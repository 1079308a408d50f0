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
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// WebhookAlerter sends anomaly notifications to a webhook endpoint.
type WebhookAlerter struct {
	webhookURL string
	headers    map[string]string
	client     *http.Client
	enabled    bool
	mu         sync.RWMutex
}

// WebhookAlerterConfig configures the webhook alerter.
type WebhookAlerterConfig struct {
	WebhookURL string            `json:"webhook_url"`
	Headers    map[string]string `json:"headers,omitempty"`
	Enabled    bool              `json:"enabled"`
	Timeout    time.Duration     `json:"timeout"`
}

// anomalyPayload is the JSON payload sent to the webhook endpoint.
type anomalyPayload struct {
	Anomalies []Anomaly `json:"anomalies"`
	EventType string    `json:"event_type"` // anomaly_alert
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // sentinel
}

// NewWebhookAlerter creates a webhook alerter.
func NewWebhookAlerter(config WebhookAlerterConfig) *WebhookAlerter {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	headers := make(map[string]string)
	for k, v := range config.Headers {
		headers[k] = v
	}

	return &WebhookAlerter{
		webhookURL: config.WebhookURL,
		headers:    headers,
		enabled:    config.Enabled,
		client:     &http.Client{Timeout: timeout},
	}
}

// Enabled returns whether the alerter will send anything.
func (a *WebhookAlerter) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled && a.webhookURL != ""
}

// SetEnabled enables or disables the alerter.
func (a *WebhookAlerter) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// SendAnomalyAlert delivers the anomaly list to the webhook endpoint.
func (a *WebhookAlerter) SendAnomalyAlert(ctx context.Context, anomalies []Anomaly) error {
	a.mu.RLock()
	if !a.enabled || a.webhookURL == "" {
		a.mu.RUnlock()
		return nil
	}
	webhookURL := a.webhookURL
	headers := make(map[string]string)
	for k, v := range a.headers {
		headers[k] = v
	}
	a.mu.RUnlock()

	payload := anomalyPayload{
		Anomalies: anomalies,
		EventType: "anomaly_alert",
		Timestamp: time.Now(),
		Source:    "sentinel",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alert endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
