// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package authz

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/fieldsight/fieldsight/internal/logging"
	"github.com/fieldsight/fieldsight/internal/metrics"
)

// OccupancyFunc reports the current live member count of a room. Wired
// to the in-memory registry so capacity checks see live occupancy, not
// the durable membership list.
type OccupancyFunc func(roomID string) int

// StoreAuthorizer authorizes joins against the durable room store and
// the Casbin role enforcer.
type StoreAuthorizer struct {
	store       *RoomStore
	enforcer    *Enforcer
	occupancy   OccupancyFunc
	defaultRole string
}

// NewStoreAuthorizer wires the store, enforcer and occupancy source.
// defaultRole is assigned to users with no recorded role in a room.
func NewStoreAuthorizer(store *RoomStore, enforcer *Enforcer, occupancy OccupancyFunc, defaultRole string) *StoreAuthorizer {
	if defaultRole == "" {
		defaultRole = "member"
	}
	return &StoreAuthorizer{
		store:       store,
		enforcer:    enforcer,
		occupancy:   occupancy,
		defaultRole: defaultRole,
	}
}

// Authorize checks, in order: the room exists, the password matches
// when the room has one, the user's role permits joining, and the room
// has capacity. A user already holding a role re-joins past the
// capacity check, since binding supersedes their previous connection
// rather than adding a member.
func (a *StoreAuthorizer) Authorize(ctx context.Context, roomID, userID, password string) (*Decision, error) {
	record, err := a.store.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			metrics.AuthzDecisions.WithLabelValues("denied").Inc()
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	if record.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
			metrics.AuthzDecisions.WithLabelValues("denied").Inc()
			return nil, ErrUnauthorized
		}
	}

	role := record.RoleFor(userID)
	known := role != ""
	if !known {
		role = a.defaultRole
	}

	allowed, err := a.enforcer.Enforce(role, ActionJoin)
	if err != nil {
		return nil, err
	}
	if !allowed {
		metrics.AuthzDecisions.WithLabelValues("denied").Inc()
		return nil, ErrUnauthorized
	}

	canPublish, err := a.enforcer.Enforce(role, ActionPublish)
	if err != nil {
		return nil, err
	}

	if !known && record.MaxMembers > 0 && a.occupancy != nil {
		if a.occupancy(roomID) >= record.MaxMembers {
			metrics.AuthzDecisions.WithLabelValues("denied").Inc()
			return nil, ErrRoomFull
		}
	}

	// Record first-time joiners so capacity and role checks are stable
	// across reconnects. Failure here does not block the join.
	if !known {
		if err := a.store.SetRole(ctx, roomID, userID, role); err != nil {
			logging.Warn().Err(err).
				Str("room_id", roomID).
				Str("user_id", userID).
				Msg("failed to persist member role")
		}
	}

	metrics.AuthzDecisions.WithLabelValues("allowed").Inc()
	return &Decision{Role: role, CanPublish: canPublish}, nil
}
