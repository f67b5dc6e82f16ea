// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package models

import "time"

// SymbolType enumerates the tactical symbol categories clients can place.
type SymbolType string

const (
	SymbolWaypoint    SymbolType = "waypoint"
	SymbolHostile     SymbolType = "hostile"
	SymbolFriendly    SymbolType = "friendly"
	SymbolObjective   SymbolType = "objective"
	SymbolHazard      SymbolType = "hazard"
	SymbolObservation SymbolType = "observation"
)

// SymbolSize enumerates the rendered size categories.
type SymbolSize string

const (
	SymbolSizeSmall  SymbolSize = "small"
	SymbolSizeMedium SymbolSize = "medium"
	SymbolSizeLarge  SymbolSize = "large"
)

// Defaults applied to newly created symbols when the client omits the field.
const (
	DefaultSymbolColor = "#FF0000"
	DefaultSymbolSize  = SymbolSizeMedium
)

// Symbol is a positioned map annotation with type and appearance metadata.
//
// Invariants: Latitude in [-90,90], Longitude in [-180,180], Rotation in
// [0,360), Color a 6-hex-digit code. Enforced by internal/validation before
// the registry ever sees the record.
type Symbol struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"room_id"`
	CreatorID string     `json:"creator_id"`
	Type      SymbolType `json:"type" validate:"required,symboltype"`
	Latitude  float64    `json:"latitude" validate:"latitude"`
	Longitude float64    `json:"longitude" validate:"longitude"`
	Label     string     `json:"label,omitempty" validate:"omitempty,max=256"`
	Color     string     `json:"color" validate:"omitempty,hexcolor6"`
	Size      SymbolSize `json:"size" validate:"omitempty,symbolsize"`
	Rotation  float64    `json:"rotation" validate:"gte=0,lt=360"`
	Visible   bool       `json:"visible"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SymbolPatch carries a partial symbol update. Nil pointers mean "leave the
// field unchanged"; last write wins field by field.
type SymbolPatch struct {
	Type      *SymbolType `json:"type,omitempty" validate:"omitempty,symboltype"`
	Latitude  *float64    `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64    `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Label     *string     `json:"label,omitempty" validate:"omitempty,max=256"`
	Color     *string     `json:"color,omitempty" validate:"omitempty,hexcolor6"`
	Size      *SymbolSize `json:"size,omitempty" validate:"omitempty,symbolsize"`
	Rotation  *float64    `json:"rotation,omitempty" validate:"omitempty,gte=0,lt=360"`
	Visible   *bool       `json:"visible,omitempty"`
}

// Apply merges the patch into the symbol, field by field.
// The caller is responsible for bumping UpdatedAt.
func (p *SymbolPatch) Apply(s *Symbol) {
	if p.Type != nil {
		s.Type = *p.Type
	}
	if p.Latitude != nil {
		s.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		s.Longitude = *p.Longitude
	}
	if p.Label != nil {
		s.Label = *p.Label
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.Size != nil {
		s.Size = *p.Size
	}
	if p.Rotation != nil {
		s.Rotation = *p.Rotation
	}
	if p.Visible != nil {
		s.Visible = *p.Visible
	}
}

// ValidSymbolType reports whether t is one of the known symbol categories.
func ValidSymbolType(t SymbolType) bool {
	switch t {
	case SymbolWaypoint, SymbolHostile, SymbolFriendly, SymbolObjective, SymbolHazard, SymbolObservation:
		return true
	}
	return false
}

// ValidSymbolSize reports whether s is one of the known size categories.
func ValidSymbolSize(s SymbolSize) bool {
	switch s {
	case SymbolSizeSmall, SymbolSizeMedium, SymbolSizeLarge:
		return true
	}
	return false
}
