// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package authz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/fieldsight/fieldsight/internal/logging"
)

// Key prefix for BadgerDB room records.
const roomKeyPrefix = "room:"

// RoomRecord is the durable description of a room: who owns it, who may
// join it, and how joins are gated. Live membership and symbol state are
// kept in memory by the registry; only this record survives restarts.
type RoomRecord struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	OwnerID      string            `json:"owner_id"`
	PasswordHash string            `json:"password_hash,omitempty"`
	InviteCode   string            `json:"invite_code,omitempty"`
	MaxMembers   int               `json:"max_members"`
	Roles        map[string]string `json:"roles"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RoleFor returns the role userID holds in the room, or "" if the user
// has no recorded role.
func (r *RoomRecord) RoleFor(userID string) string {
	if r.Roles == nil {
		return ""
	}
	return r.Roles[userID]
}

// RoomStore persists room records in BadgerDB.
type RoomStore struct {
	db *badger.DB
}

// NewRoomStore creates a store over an already-opened BadgerDB handle.
func NewRoomStore(db *badger.DB) *RoomStore {
	return &RoomStore{db: db}
}

// OpenDB opens a BadgerDB at path, or an in-memory instance when
// inMemory is true. The returned handle is shared by every store built
// on top of it and must be closed on shutdown.
func OpenDB(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithInMemory(inMemory).
		WithLogger(nil)
	if inMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// Create stores a new room record. The record's ID must be set; invite
// code is generated when absent. Fails if a record already exists.
func (s *RoomStore) Create(ctx context.Context, record *RoomRecord) error {
	if record.ID == "" {
		return errors.New("room id required")
	}
	if record.InviteCode == "" {
		code, err := newInviteCode()
		if err != nil {
			return fmt.Errorf("generate invite code: %w", err)
		}
		record.InviteCode = code
	}
	if record.Roles == nil {
		record.Roles = map[string]string{}
	}
	if record.OwnerID != "" {
		record.Roles[record.OwnerID] = "owner"
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal room record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(roomKeyPrefix + record.ID)
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("room %q already exists", record.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check room: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Get retrieves a room record by ID.
func (s *RoomStore) Get(ctx context.Context, id string) (*RoomRecord, error) {
	var record RoomRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Update overwrites an existing room record.
func (s *RoomStore) Update(ctx context.Context, record *RoomRecord) error {
	record.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal room record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(roomKeyPrefix + record.ID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRoomNotFound
		} else if err != nil {
			return fmt.Errorf("check room: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Delete removes a room record. Deleting an absent record is not an error.
func (s *RoomStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(roomKeyPrefix + id))
	})
}

// List returns every stored room record.
func (s *RoomStore) List(ctx context.Context) ([]*RoomRecord, error) {
	var records []*RoomRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(roomKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record RoomRecord
				if err := json.Unmarshal(val, &record); err != nil {
					// Skip corrupt records rather than failing the listing.
					logging.Warn().Err(err).Msg("skipping unreadable room record")
					return nil
				}
				records = append(records, &record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SetRole records userID's role in the room.
func (s *RoomStore) SetRole(ctx context.Context, roomID, userID, role string) error {
	record, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if record.Roles == nil {
		record.Roles = map[string]string{}
	}
	record.Roles[userID] = role
	return s.Update(ctx, record)
}

func newInviteCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
