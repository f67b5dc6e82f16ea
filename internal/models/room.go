// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

// Package models defines the shared data contracts for Fieldsight: rooms,
// members, tactical symbols and the API response envelope.
package models

import "time"

// Coordinates is a geographic position reported by a client device.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Heading   float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds, client clock
}

// Member is a user's live presence record within a room. A member is tied to
// exactly one connection at a time; a reconnect for the same user supersedes
// the previous connection rather than creating a second member.
type Member struct {
	UserID       string       `json:"user_id"`
	ConnectionID string       `json:"-"` // volatile, never sent on the wire
	Username     string       `json:"username"`
	IsOnline     bool         `json:"is_online"`
	JoinedAt     time.Time    `json:"joined_at"`
	LastSeen     time.Time    `json:"last_seen"`
	Position     *Coordinates `json:"position,omitempty"`
}

// Room is a named realtime session scoping members and symbols.
// A room exists in the registry if and only if it has at least one member.
type Room struct {
	ID      string             `json:"id"`
	Members map[string]*Member `json:"members"` // keyed by user id
	Symbols map[string]*Symbol `json:"symbols"` // keyed by symbol id
}

// RoomSnapshot is a full point-in-time copy of a room's state, sent to a
// newly joined connection. Slices are copies; mutating them does not affect
// registry state.
type RoomSnapshot struct {
	RoomID  string    `json:"room_id"`
	Members []*Member `json:"members"`
	Symbols []*Symbol `json:"symbols"`
}
