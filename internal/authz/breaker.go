// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package authz

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fieldsight/fieldsight/internal/logging"
	"github.com/fieldsight/fieldsight/internal/metrics"
)

// ErrAuthzUnavailable is returned while the breaker is open and join
// decisions cannot be made.
var ErrAuthzUnavailable = errors.New("authorization temporarily unavailable")

// BreakerAuthorizer wraps an Authorizer with a circuit breaker so a
// failing store degrades joins quickly instead of stalling the
// coordinator loop. Denials (bad password, full room, unknown room)
// are decisions, not failures, and never trip the breaker.
type BreakerAuthorizer struct {
	inner Authorizer
	cb    *gobreaker.CircuitBreaker[*Decision]
}

// NewBreakerAuthorizer wraps inner with circuit breaker protection.
// The breaker opens after a 60% failure rate over at least 10 requests
// and probes recovery after 30 seconds.
func NewBreakerAuthorizer(inner Authorizer) *BreakerAuthorizer {
	metrics.AuthzBreakerState.Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*Decision](gobreaker.Settings{
		Name:        "room-authz",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("opening authorization circuit")
			}
			return shouldTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("authorization breaker state change")
			metrics.AuthzBreakerState.Set(stateToFloat(to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return errors.Is(err, ErrUnauthorized) ||
				errors.Is(err, ErrRoomFull) ||
				errors.Is(err, ErrRoomNotFound)
		},
	})

	return &BreakerAuthorizer{inner: inner, cb: cb}
}

// Authorize delegates through the breaker.
func (b *BreakerAuthorizer) Authorize(ctx context.Context, roomID, userID, password string) (*Decision, error) {
	decision, err := b.cb.Execute(func() (*Decision, error) {
		return b.inner.Authorize(ctx, roomID, userID, password)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrAuthzUnavailable
		}
		return nil, err
	}
	return decision, nil
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
