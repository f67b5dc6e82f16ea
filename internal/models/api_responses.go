// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package models

import "time"

// APIResponse is the standardized response wrapper used by all HTTP endpoints.
//
// Status is "success" (see Data) or "error" (see Error).
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError carries a machine-readable error code plus a human-readable message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus reports process health and the realtime observability surface:
// count of active rooms and active connections.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	StoreConnected    bool    `json:"store_connected"`
	ActiveRooms       int     `json:"active_rooms"`
	ActiveConnections int     `json:"active_connections"`
	Uptime            float64 `json:"uptime_seconds"`
}
