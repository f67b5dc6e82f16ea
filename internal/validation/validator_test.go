// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight/internal/models"
)

func TestValidateStruct_Coordinates(t *testing.T) {
	tests := []struct {
		name    string
		coords  models.Coordinates
		wantErr bool
	}{
		{
			name:   "valid position",
			coords: models.Coordinates{Latitude: 48.2082, Longitude: 16.3738, Timestamp: 1700000000000},
		},
		{
			name:    "latitude out of range",
			coords:  models.Coordinates{Latitude: 91, Longitude: 0},
			wantErr: true,
		},
		{
			name:    "longitude out of range",
			coords:  models.Coordinates{Latitude: 0, Longitude: -180.5},
			wantErr: true,
		},
		{
			name:    "negative accuracy",
			coords:  models.Coordinates{Latitude: 0, Longitude: 0, Accuracy: -1},
			wantErr: true,
		},
		{
			name:    "heading wraps past 360",
			coords:  models.Coordinates{Latitude: 0, Longitude: 0, Heading: 360},
			wantErr: true,
		},
		{
			name:   "boundary values accepted",
			coords: models.Coordinates{Latitude: -90, Longitude: 180, Heading: 359.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.coords)
			if tt.wantErr {
				require.NotNil(t, err)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestValidateStruct_Symbol(t *testing.T) {
	valid := models.Symbol{
		Type:      models.SymbolWaypoint,
		Latitude:  10,
		Longitude: 20,
		Color:     "#00FF00",
		Size:      models.SymbolSizeMedium,
		Rotation:  45,
	}

	t.Run("valid symbol", func(t *testing.T) {
		assert.Nil(t, ValidateStruct(&valid))
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		s := valid
		s.Type = "tank-column"
		err := ValidateStruct(&s)
		require.NotNil(t, err)
		assert.Equal(t, "symboltype", err.Errors()[0].Tag())
	})

	t.Run("short hex color rejected", func(t *testing.T) {
		s := valid
		s.Color = "#F00"
		err := ValidateStruct(&s)
		require.NotNil(t, err)
		assert.Equal(t, "hexcolor6", err.Errors()[0].Tag())
	})

	t.Run("rotation must stay below 360", func(t *testing.T) {
		s := valid
		s.Rotation = 360
		require.NotNil(t, ValidateStruct(&s))
	})

	t.Run("bad size rejected", func(t *testing.T) {
		s := valid
		s.Size = "huge"
		require.NotNil(t, ValidateStruct(&s))
	})
}

func TestValidateStruct_SymbolPatchPartial(t *testing.T) {
	lat := 12.5
	color := "#ABCDEF"

	patch := models.SymbolPatch{Latitude: &lat, Color: &color}
	assert.Nil(t, ValidateStruct(&patch))

	badColor := "red"
	patch.Color = &badColor
	require.NotNil(t, ValidateStruct(&patch))
}

func TestToAPIError(t *testing.T) {
	s := models.Symbol{Type: "nope", Latitude: 99, Longitude: 0, Color: "#123456"}
	err := ValidateStruct(&s)
	require.NotNil(t, err)

	apiErr := err.ToAPIError()
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.NotEmpty(t, apiErr.Message)
	assert.NotNil(t, apiErr.Details)
}
