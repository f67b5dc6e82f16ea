// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

// Package metrics provides Prometheus instrumentation for Fieldsight:
// realtime room/connection gauges, event throughput, fanout behavior,
// authorization breaker state and API request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Realtime state metrics
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldsight_active_rooms",
			Help: "Current number of active rooms in the registry",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldsight_active_connections",
			Help: "Current number of live realtime connections",
		},
	)

	// Event processing metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsight_events_total",
			Help: "Total number of inbound realtime events processed",
		},
		[]string{"type"},
	)

	EventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsight_event_errors_total",
			Help: "Total number of realtime events rejected with a typed error",
		},
		[]string{"code"},
	)

	EventsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldsight_events_throttled_total",
			Help: "Total number of inbound events dropped by the per-connection rate limiter",
		},
	)

	// Fanout metrics
	DeltasDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsight_deltas_delivered_total",
			Help: "Total number of delta events queued to recipient connections",
		},
		[]string{"type"},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldsight_broadcast_dropped_total",
			Help: "Total number of deltas dropped because a recipient send buffer was full",
		},
	)

	// Authorization facade metrics
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsight_authz_decisions_total",
			Help: "Total number of authorization facade decisions",
		},
		[]string{"result"}, // "allowed", "denied", "error", "rejected"
	)

	AuthzBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldsight_authz_breaker_state",
			Help: "Authorization circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsight_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldsight_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
