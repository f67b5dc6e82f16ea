// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package realtime

import (
	"github.com/goccy/go-json"

	"github.com/fieldsight/fieldsight/internal/models"
)

// Inbound event types. One consistent snake_case wire naming scheme.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventPositionUpdate = "position_update"
	EventSymbolCreate   = "symbol_create"
	EventSymbolUpdate   = "symbol_update"
	EventSymbolDelete   = "symbol_delete"
	EventPing           = "ping"
)

// Outbound event types.
const (
	EventRoomSnapshot  = "room_snapshot"
	EventMemberJoined  = "member_joined"
	EventMemberLeft    = "member_left"
	EventSymbolCreated = "symbol_created"
	EventSymbolUpdated = "symbol_updated"
	EventSymbolDeleted = "symbol_deleted"
	EventJoinFailed    = "join_failed"
	EventError         = "error"
	EventPong          = "pong"
)

// Error codes carried by error and join_failed events.
const (
	CodeNotInRoom      = "NOT_IN_ROOM"
	CodeSymbolNotFound = "SYMBOL_NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRoomFull       = "ROOM_FULL"
	CodeBadPayload     = "BAD_PAYLOAD"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL"
)

// InboundMessage is a raw client event: a named type plus an unparsed
// payload. The coordinator decodes Data according to Type.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is an outbound message fanned out to connections.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// JoinRequest is the payload of a join_room event. A connection may join
// while already bound; the previous binding is cleaned up first, so
// switching rooms is a re-join.
type JoinRequest struct {
	RoomID   string `json:"room_id" validate:"required,max=128"`
	UserID   string `json:"user_id" validate:"required,max=128"`
	Username string `json:"username,omitempty" validate:"omitempty,max=128"`
	Password string `json:"password,omitempty"`
}

// SymbolCreateRequest carries the client-settable symbol fields; id,
// timestamps and ownership are assigned by the registry.
type SymbolCreateRequest struct {
	Type      models.SymbolType `json:"type" validate:"required,symboltype"`
	Latitude  float64           `json:"latitude" validate:"latitude"`
	Longitude float64           `json:"longitude" validate:"longitude"`
	Label     string            `json:"label,omitempty" validate:"omitempty,max=256"`
	Color     string            `json:"color,omitempty" validate:"omitempty,hexcolor6"`
	Size      models.SymbolSize `json:"size,omitempty" validate:"omitempty,symbolsize"`
	Rotation  float64           `json:"rotation,omitempty" validate:"gte=0,lt=360"`
	Visible   *bool             `json:"visible,omitempty"`
}

// SymbolUpdateRequest is the payload of a symbol_update event.
type SymbolUpdateRequest struct {
	ID string `json:"id" validate:"required"`
	models.SymbolPatch
}

// SymbolDeleteRequest is the payload of a symbol_delete event.
type SymbolDeleteRequest struct {
	ID string `json:"id" validate:"required"`
}

// MemberJoined is the delta sent to existing members when someone joins.
type MemberJoined struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
	JoinedAt string `json:"joined_at"`
}

// MemberLeft is the delta sent to remaining members on leave/disconnect.
type MemberLeft struct {
	UserID string `json:"user_id"`
	LeftAt string `json:"left_at"`
}

// PositionDelta is the position_update delta fanned out to the other
// members of the sender's room.
type PositionDelta struct {
	models.Coordinates
	UserID string `json:"user_id"`
}

// SymbolDeleted is the delta confirming a symbol removal.
type SymbolDeleted struct {
	ID string `json:"id"`
}

// ErrorEvent is a typed error delivered only to the offending connection.
// It never terminates the connection.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
