// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldsight/fieldsight/internal/config"
	"github.com/fieldsight/fieldsight/internal/middleware"
)

// Router assembles the Chi route tree.
type Router struct {
	handler *Handler
	chimw   *ChiMiddleware
}

// NewRouter builds a router from the handler and security config.
func NewRouter(handler *Handler, cfg *config.SecurityConfig) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.CORSOrigins
	if cfg.RateLimitReqs > 0 {
		mwConfig.RateLimitRequests = cfg.RateLimitReqs
	}
	if cfg.RateLimitWindow > 0 {
		mwConfig.RateLimitWindow = cfg.RateLimitWindow
	}
	mwConfig.RateLimitDisabled = cfg.RateLimitDisabled

	return &Router{
		handler: handler,
		chimw:   NewChiMiddleware(mwConfig),
	}
}

// Setup wires all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogging)
	r.Use(router.chimw.CORS())

	// Health endpoints, permissive limits so probes are never starved.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chimw.RateLimitHealth())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Login carries the strictest limit to slow credential stuffing.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(router.chimw.RateLimitLogin()).Post("/login", router.handler.Login)
	})

	// Room management and the realtime endpoint require a session.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chimw.RateLimit())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.handler.Authenticate)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", router.handler.ListRooms)
			r.Post("/", router.handler.CreateRoom)
			r.Get("/{roomID}", router.handler.GetRoom)
			r.Delete("/{roomID}", router.handler.DeleteRoom)
		})

		r.Get("/ws", router.handler.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
