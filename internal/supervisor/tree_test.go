// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package supervisor

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type blockingService struct {
	name    string
	started chan struct{}
}

func (s *blockingService) Serve(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingService) String() string { return s.name }

func TestTreeRunsAndStopsServices(t *testing.T) {
	tree := NewTree(slog.Default(), DefaultTreeConfig())

	pipeline := &blockingService{name: "pipeline-svc", started: make(chan struct{}, 1)}
	api := &blockingService{name: "api-svc", started: make(chan struct{}, 1)}
	tree.AddPipelineService(pipeline)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	for _, svc := range []*blockingService{pipeline, api} {
		select {
		case <-svc.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not start", svc.name)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop on cancel")
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
