// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

// Package registry implements the authoritative in-memory store for active
// rooms, their members and their symbols. It performs no network or
// persistence I/O.
//
// All mutations arrive from the single realtime coordinator loop, so each
// operation is effectively atomic with respect to other events. The RWMutex
// exists because the HTTP health and metrics handlers read counts from
// other goroutines.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsight/fieldsight/internal/models"
)

var (
	// ErrRoomNotFound is returned by symbol operations on a room that does
	// not exist in the registry.
	ErrRoomNotFound = errors.New("room not found")

	// ErrSymbolNotFound is returned by update/delete referencing an unknown
	// symbol id.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Registry is the in-memory table of active rooms. A room is present if and
// only if it has at least one member; rooms are created together with their
// first member and reclaimed when the last member leaves.
//
// Construct one per process with New and inject it; there is no package
// singleton, so tests get isolation with fresh instances.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		rooms: make(map[string]*models.Room),
	}
}

// getOrCreateLocked returns the room, creating an empty one if absent.
// Caller must hold mu.
func (r *Registry) getOrCreateLocked(roomID string) *models.Room {
	room, ok := r.rooms[roomID]
	if !ok {
		room = &models.Room{
			ID:      roomID,
			Members: make(map[string]*models.Member),
			Symbols: make(map[string]*models.Symbol),
		}
		r.rooms[roomID] = room
	}
	return room
}

// AddOrReplaceMember inserts a member record for (roomID, userID), creating
// the room if this is its first member. An existing record for the same
// user is superseded: the new connection replaces it and the old connection
// id no longer matches on removal. Returns the stored member.
func (r *Registry) AddOrReplaceMember(roomID, userID, connectionID, username string) *models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.getOrCreateLocked(roomID)
	now := time.Now().UTC()
	member := &models.Member{
		UserID:       userID,
		ConnectionID: connectionID,
		Username:     username,
		IsOnline:     true,
		JoinedAt:     now,
		LastSeen:     now,
		Position:     nil,
	}
	room.Members[userID] = member
	return member
}

// UpdateMemberPosition sets the member's position and refreshes last-seen.
// Returns false if the room or member is absent; the caller translates that
// into a "not a member" signal rather than an internal failure.
func (r *Registry) UpdateMemberPosition(roomID, userID string, coords models.Coordinates) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	member, ok := room.Members[userID]
	if !ok {
		return false
	}

	c := coords
	member.Position = &c
	member.LastSeen = time.Now().UTC()
	return true
}

// RemoveMember removes the member only if its stored connection id equals
// the supplied one. This keeps a stale disconnect from a superseded
// connection from wiping a fresher session. Returns whether removal
// happened.
func (r *Registry) RemoveMember(roomID, userID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	member, ok := room.Members[userID]
	if !ok || member.ConnectionID != connectionID {
		return false
	}

	delete(room.Members, userID)
	return true
}

// ReclaimIfEmpty deletes the room entry if it has zero members, destroying
// its symbols with it. Idempotent. Returns whether the room was reclaimed.
func (r *Registry) ReclaimIfEmpty(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || len(room.Members) > 0 {
		return false
	}

	delete(r.rooms, roomID)
	return true
}

// CreateSymbol generates an id and timestamps for the symbol, inserts it
// and returns the stored record. The input's ID/CreatedAt/UpdatedAt are
// ignored. Fails with ErrRoomNotFound if the room does not exist; rooms are
// only ever created through a join.
func (r *Registry) CreateSymbol(roomID, creatorID string, s models.Symbol) (*models.Symbol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	now := time.Now().UTC()
	s.ID = uuid.NewString()
	s.RoomID = roomID
	s.CreatorID = creatorID
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Color == "" {
		s.Color = models.DefaultSymbolColor
	}
	if s.Size == "" {
		s.Size = models.DefaultSymbolSize
	}

	stored := s
	room.Symbols[stored.ID] = &stored

	copied := stored
	return &copied, nil
}

// UpdateSymbol merges the patch into the existing record and bumps the
// update timestamp. Fails with ErrSymbolNotFound if the symbol does not
// exist in that room.
func (r *Registry) UpdateSymbol(roomID, symbolID string, patch models.SymbolPatch) (*models.Symbol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	symbol, ok := room.Symbols[symbolID]
	if !ok {
		return nil, ErrSymbolNotFound
	}

	patch.Apply(symbol)

	// UpdatedAt must never move backwards, even at coarse clock resolution.
	now := time.Now().UTC()
	if !now.After(symbol.UpdatedAt) {
		now = symbol.UpdatedAt.Add(time.Nanosecond)
	}
	symbol.UpdatedAt = now

	copied := *symbol
	return &copied, nil
}

// DeleteSymbol removes the symbol and reports whether it existed.
func (r *Registry) DeleteSymbol(roomID, symbolID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := room.Symbols[symbolID]; !ok {
		return false
	}

	delete(room.Symbols, symbolID)
	return true
}

// Snapshot returns a consistent point-in-time copy of the room's members
// and symbols, or ok=false if the room does not exist. The copies are
// detached from registry state; ordering of the slices is not significant.
func (r *Registry) Snapshot(roomID string) (*models.RoomSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}

	snap := &models.RoomSnapshot{
		RoomID:  roomID,
		Members: make([]*models.Member, 0, len(room.Members)),
		Symbols: make([]*models.Symbol, 0, len(room.Symbols)),
	}
	for _, m := range room.Members {
		copied := *m
		if m.Position != nil {
			pos := *m.Position
			copied.Position = &pos
		}
		snap.Members = append(snap.Members, &copied)
	}
	for _, s := range room.Symbols {
		copied := *s
		snap.Symbols = append(snap.Symbols, &copied)
	}
	return snap, true
}

// Member returns a copy of the member record, or ok=false if absent.
func (r *Registry) Member(roomID, userID string) (*models.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	member, ok := room.Members[userID]
	if !ok {
		return nil, false
	}

	copied := *member
	if member.Position != nil {
		pos := *member.Position
		copied.Position = &pos
	}
	return &copied, true
}

// Connections returns the connection ids of all current members of the
// room. Used by the coordinator to resolve fanout targets.
func (r *Registry) Connections(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	conns := make([]string, 0, len(room.Members))
	for _, m := range room.Members {
		conns = append(conns, m.ConnectionID)
	}
	return conns
}

// MemberCount returns the number of members in the room, 0 if absent.
func (r *Registry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(room.Members)
}

// HasRoom reports whether the room currently exists in the registry.
func (r *Registry) HasRoom(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Stats returns the count of active rooms and of members across all rooms.
// Consumed by the health endpoint and metrics, not by core logic.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms = len(r.rooms)
	for _, room := range r.rooms {
		members += len(room.Members)
	}
	return rooms, members
}
