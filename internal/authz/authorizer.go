// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

// Package authz implements the room authorization facade consulted by the
// realtime coordinator before binding a connection to a (room, user) pair.
//
// The facade is backed by a BadgerDB room store (membership, roles,
// password hashes) and a Casbin RBAC enforcer mapping roles to actions.
// The coordinator reaches it through a circuit breaker so a misbehaving
// store degrades joins instead of hanging the event loop.
package authz

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized means the (room, user, password) triple was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRoomFull means the room is at its membership capacity.
	ErrRoomFull = errors.New("room full")

	// ErrRoomNotFound means no room record exists for the id.
	ErrRoomNotFound = errors.New("room record not found")
)

// Decision is a successful authorization outcome.
type Decision struct {
	// Role the user holds in the room ("owner" or "member").
	Role string

	// CanPublish reports whether the role grants the publish action:
	// position updates and symbol mutations. Resolved once per join so
	// the coordinator loop never touches the enforcer on the hot path.
	CanPublish bool
}

// Authorizer decides whether a user may bind to a room. Implementations
// must be safe for use from the coordinator loop.
type Authorizer interface {
	Authorize(ctx context.Context, roomID, userID, password string) (*Decision, error)
}

// Open is an Authorizer that trusts every join request at face value and
// assigns the given role. Used when the authorization facade is disabled:
// rooms then come into existence on first join, the original
// trust-the-binding behavior.
type Open struct {
	Role string
}

// Authorize always allows.
func (o Open) Authorize(context.Context, string, string, string) (*Decision, error) {
	role := o.Role
	if role == "" {
		role = "member"
	}
	return &Decision{Role: role, CanPublish: true}, nil
}
