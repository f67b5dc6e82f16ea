// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight/internal/models"
)

func TestAddOrReplaceMember_CreatesRoomWithFirstMember(t *testing.T) {
	r := New()

	member := r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")

	require.NotNil(t, member)
	assert.True(t, member.IsOnline)
	assert.Nil(t, member.Position)
	assert.True(t, r.HasRoom("r1"))

	rooms, members := r.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, members)
}

func TestAddOrReplaceMember_SupersedesPriorConnection(t *testing.T) {
	r := New()
	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")
	r.AddOrReplaceMember("r1", "alice", "conn-2", "Alice")

	// Exactly one member record, bound to the second connection.
	_, members := r.Stats()
	assert.Equal(t, 1, members)

	m, ok := r.Member("r1", "alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", m.ConnectionID)

	// A stale disconnect from the superseded connection must not evict
	// the fresher session.
	assert.False(t, r.RemoveMember("r1", "alice", "conn-1"))
	_, ok = r.Member("r1", "alice")
	assert.True(t, ok)

	// The current connection can remove it.
	assert.True(t, r.RemoveMember("r1", "alice", "conn-2"))
	_, ok = r.Member("r1", "alice")
	assert.False(t, ok)
}

func TestRemoveMember_AbsentRoomOrMember(t *testing.T) {
	r := New()
	assert.False(t, r.RemoveMember("nope", "alice", "conn-1"))

	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")
	assert.False(t, r.RemoveMember("r1", "bob", "conn-2"))
}

func TestUpdateMemberPosition(t *testing.T) {
	r := New()

	coords := models.Coordinates{Latitude: 10, Longitude: 20, Timestamp: 1700000000000}

	assert.False(t, r.UpdateMemberPosition("r1", "alice", coords), "absent room is a no-op")

	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")
	assert.False(t, r.UpdateMemberPosition("r1", "bob", coords), "absent member is a no-op")
	assert.True(t, r.UpdateMemberPosition("r1", "alice", coords))

	m, ok := r.Member("r1", "alice")
	require.True(t, ok)
	require.NotNil(t, m.Position)
	assert.Equal(t, 10.0, m.Position.Latitude)
	assert.Equal(t, 20.0, m.Position.Longitude)
	assert.False(t, m.LastSeen.Before(m.JoinedAt))
}

func TestReclaimIfEmpty(t *testing.T) {
	r := New()
	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")

	assert.False(t, r.ReclaimIfEmpty("r1"), "room with members is kept")

	require.True(t, r.RemoveMember("r1", "alice", "conn-1"))
	assert.True(t, r.ReclaimIfEmpty("r1"))
	assert.False(t, r.HasRoom("r1"))
	assert.False(t, r.ReclaimIfEmpty("r1"), "idempotent on absent room")
}

func TestReclaimDestroysSymbols(t *testing.T) {
	r := New()
	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")

	created, err := r.CreateSymbol("r1", "alice", models.Symbol{Type: models.SymbolWaypoint, Latitude: 1, Longitude: 2})
	require.NoError(t, err)

	r.RemoveMember("r1", "alice", "conn-1")
	r.ReclaimIfEmpty("r1")

	// Re-create the room; the old symbol id must be gone.
	r.AddOrReplaceMember("r1", "bob", "conn-2", "Bob")
	_, err = r.UpdateSymbol("r1", created.ID, models.SymbolPatch{})
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
}

func TestCreateSymbol(t *testing.T) {
	r := New()

	t.Run("room must exist", func(t *testing.T) {
		_, err := r.CreateSymbol("ghost", "alice", models.Symbol{Type: models.SymbolWaypoint})
		assert.True(t, errors.Is(err, ErrRoomNotFound))
	})

	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")

	t.Run("defaults applied", func(t *testing.T) {
		s, err := r.CreateSymbol("r1", "alice", models.Symbol{
			Type:      models.SymbolWaypoint,
			Latitude:  10,
			Longitude: 20,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, "r1", s.RoomID)
		assert.Equal(t, "alice", s.CreatorID)
		assert.Equal(t, models.DefaultSymbolColor, s.Color)
		assert.Equal(t, models.DefaultSymbolSize, s.Size)
		assert.Equal(t, 0.0, s.Rotation)
		assert.Equal(t, s.CreatedAt, s.UpdatedAt)
	})

	t.Run("explicit fields kept", func(t *testing.T) {
		s, err := r.CreateSymbol("r1", "alice", models.Symbol{
			Type:     models.SymbolHostile,
			Color:    "#00FF00",
			Size:     models.SymbolSizeLarge,
			Rotation: 90,
		})
		require.NoError(t, err)
		assert.Equal(t, "#00FF00", s.Color)
		assert.Equal(t, models.SymbolSizeLarge, s.Size)
		assert.Equal(t, 90.0, s.Rotation)
	})

	t.Run("ids unique", func(t *testing.T) {
		a, err := r.CreateSymbol("r1", "alice", models.Symbol{Type: models.SymbolWaypoint})
		require.NoError(t, err)
		b, err := r.CreateSymbol("r1", "alice", models.Symbol{Type: models.SymbolWaypoint})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestUpdateSymbol_PartialMerge(t *testing.T) {
	r := New()
	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")

	created, err := r.CreateSymbol("r1", "alice", models.Symbol{
		Type:      models.SymbolWaypoint,
		Latitude:  10,
		Longitude: 20,
		Label:     "rally point",
	})
	require.NoError(t, err)

	label := "fallback point"
	updated, err := r.UpdateSymbol("r1", created.ID, models.SymbolPatch{Label: &label})
	require.NoError(t, err)

	// Only the supplied field changed.
	assert.Equal(t, "fallback point", updated.Label)
	assert.Equal(t, created.Type, updated.Type)
	assert.Equal(t, created.Latitude, updated.Latitude)
	assert.Equal(t, created.Longitude, updated.Longitude)
	assert.Equal(t, created.Color, updated.Color)

	// Update timestamp always moves forward.
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	// Repeated updates keep the timestamp monotonic.
	again, err := r.UpdateSymbol("r1", created.ID, models.SymbolPatch{})
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.After(updated.UpdatedAt))
}

func TestUpdateSymbol_NotFound(t *testing.T) {
	r := New()
	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")

	_, err := r.UpdateSymbol("r1", "ghost", models.SymbolPatch{})
	assert.True(t, errors.Is(err, ErrSymbolNotFound))

	_, err = r.UpdateSymbol("ghost-room", "ghost", models.SymbolPatch{})
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
}

func TestDeleteSymbol(t *testing.T) {
	r := New()
	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")

	created, err := r.CreateSymbol("r1", "alice", models.Symbol{Type: models.SymbolWaypoint})
	require.NoError(t, err)

	assert.True(t, r.DeleteSymbol("r1", created.ID))
	assert.False(t, r.DeleteSymbol("r1", created.ID), "second delete reports absence")
	assert.False(t, r.DeleteSymbol("ghost", "x"))
}

func TestSnapshot(t *testing.T) {
	r := New()

	_, ok := r.Snapshot("ghost")
	assert.False(t, ok)

	r.AddOrReplaceMember("r1", "alice", "conn-1", "Alice")
	r.AddOrReplaceMember("r1", "bob", "conn-2", "Bob")
	_, err := r.CreateSymbol("r1", "alice", models.Symbol{Type: models.SymbolWaypoint, Latitude: 1, Longitude: 2})
	require.NoError(t, err)

	snap, ok := r.Snapshot("r1")
	require.True(t, ok)
	assert.Len(t, snap.Members, 2)
	assert.Len(t, snap.Symbols, 1)

	// The snapshot is detached: later mutations do not show through.
	coords := models.Coordinates{Latitude: 50, Longitude: 8}
	r.UpdateMemberPosition("r1", "alice", coords)
	for _, m := range snap.Members {
		assert.Nil(t, m.Position)
	}
}

func TestStats_MemberCountMatchesJoinLeaveSequences(t *testing.T) {
	r := New()

	r.AddOrReplaceMember("r1", "alice", "c1", "Alice")
	r.AddOrReplaceMember("r1", "bob", "c2", "Bob")
	r.AddOrReplaceMember("r2", "carol", "c3", "Carol")
	r.AddOrReplaceMember("r1", "alice", "c4", "Alice") // reconnect, not a new member

	rooms, members := r.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, members)

	r.RemoveMember("r1", "bob", "c2")
	r.ReclaimIfEmpty("r1")
	rooms, members = r.Stats()
	assert.Equal(t, 2, rooms, "r1 still has alice")
	assert.Equal(t, 2, members)

	r.RemoveMember("r1", "alice", "c4")
	r.ReclaimIfEmpty("r1")
	rooms, _ = r.Stats()
	assert.Equal(t, 1, rooms)
	assert.False(t, r.HasRoom("r1"))
}
