// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcadia-commerce/sentinel/internal/authz"
	"github.com/arcadia-commerce/sentinel/internal/config"
	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// WebsocketHandler serves the live admin feed upgrade endpoint. The
// ws hub satisfies this; nil disables the route.
type WebsocketHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Server is the admin HTTP server.
type Server struct {
	config   config.ServerConfig
	handler  *Handler
	enforcer *authz.Enforcer
	hub      WebsocketHandler
	router   chi.Router
}

// NewServer builds the admin server and its route tree.
func NewServer(cfg config.ServerConfig, handler *Handler, enforcer *authz.Enforcer, hub WebsocketHandler) *Server {
	s := &Server{
		config:   cfg,
		handler:  handler,
		enforcer: enforcer,
		hub:      hub,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(s.config.RateLimitReqs, s.config.RateLimitWindow))

	r.Get("/healthz", s.handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(requireCapability(s.enforcer, authz.ObjectStats, authz.ActionRead)).
			Get("/security/stats", s.handler.Stats)

		r.Route("/incidents", func(r chi.Router) {
			r.With(requireCapability(s.enforcer, authz.ObjectIncidents, authz.ActionRead)).
				Get("/", s.handler.ListIncidents)
			r.With(requireCapability(s.enforcer, authz.ObjectIncidents, authz.ActionRead)).
				Get("/{id}", s.handler.GetIncident)
			r.With(requireCapability(s.enforcer, authz.ObjectIncidents, authz.ActionWrite)).
				Patch("/{id}/status", s.handler.UpdateIncidentStatus)
			r.With(requireCapability(s.enforcer, authz.ObjectIncidents, authz.ActionWrite)).
				Post("/{id}/actions", s.handler.AddIncidentAction)
		})

		r.With(requireCapability(s.enforcer, authz.ObjectRateLimit, authz.ActionUnblock)).
			Post("/ratelimit/unblock", s.handler.Unblock)

		r.With(requireCapability(s.enforcer, authz.ObjectEvents, authz.ActionRead)).
			Get("/events", s.handler.QueryEvents)

		r.Route("/runbooks", func(r chi.Router) {
			r.Use(requireCapability(s.enforcer, authz.ObjectIncidents, authz.ActionRead))
			r.Get("/", s.handler.ListRunbooks)
			r.Get("/{class}", s.handler.GetRunbook)
		})
	})

	return r
}

// Router exposes the route tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Serve runs the HTTP server until the context is cancelled, then
// shuts down gracefully. Designed to run under suture supervision.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.Timeout,
		WriteTimeout:      s.config.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("Admin API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Err(err).Msg("Admin API shutdown failed")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin api server: %w", err)
	}
}

func (s *Server) String() string { return "admin-api" }
