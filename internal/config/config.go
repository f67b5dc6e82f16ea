// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

// Package config defines the Fieldsight configuration model and its loader.
// Configuration is loaded via Koanf v2 with layered sources, highest
// priority last: built-in defaults, optional YAML file, environment
// variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Fieldsight server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Authz    AuthzConfig    `koanf:"authz"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // "development" or "production"
}

// RealtimeConfig tunes the websocket transport and the coordinator loop.
type RealtimeConfig struct {
	// SendBufferSize is the per-connection outbound queue length. A
	// recipient whose queue fills up has that delta dropped, never the
	// whole fanout.
	SendBufferSize int `koanf:"send_buffer_size"`

	// EventBufferSize is the inbound command queue length for the
	// coordinator loop.
	EventBufferSize int `koanf:"event_buffer_size"`

	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	MaxMessageSize int64         `koanf:"max_message_size"`

	// EventsPerSecond / EventBurst bound how fast a single connection may
	// submit events; position spam beyond this is dropped.
	EventsPerSecond float64 `koanf:"events_per_second"`
	EventBurst      int     `koanf:"event_burst"`
}

// StoreConfig holds settings for the BadgerDB room store backing the
// authorization facade.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// SecurityConfig holds authentication and HTTP hardening settings.
type SecurityConfig struct {
	// AuthMode is "jwt" (default) or "none" for development.
	AuthMode          string        `koanf:"auth_mode"`
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	AdminUsername     string        `koanf:"admin_username"`
	AdminPassword     string        `koanf:"admin_password"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// AuthzConfig controls the room authorization facade consulted before a
// realtime join binds a connection.
type AuthzConfig struct {
	// Enabled gates the facade. When false the realtime layer trusts join
	// requests at face value and creates rooms on first join.
	Enabled bool `koanf:"enabled"`

	// DefaultRole is assigned to members joining a room they have no
	// explicit role in. Known roles: owner, member.
	DefaultRole string `koanf:"default_role"`

	// MaxMembersDefault caps room membership when a room record does not
	// set its own limit. 0 means unlimited.
	MaxMembersDefault int `koanf:"max_members_default"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Authentication modes for SecurityConfig.AuthMode.
const (
	AuthModeJWT  = "jwt"
	AuthModeNone = "none"
)

// Validate checks the configuration for contradictions and missing
// required values. Called by the loader after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	switch c.Security.AuthMode {
	case AuthModeJWT:
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters when auth_mode is jwt")
		}
	case AuthModeNone:
		if c.Server.Environment == "production" {
			return fmt.Errorf("security.auth_mode=none is not allowed in production")
		}
	default:
		return fmt.Errorf("security.auth_mode must be jwt or none, got %q", c.Security.AuthMode)
	}

	if c.Realtime.SendBufferSize <= 0 {
		return fmt.Errorf("realtime.send_buffer_size must be positive")
	}
	if c.Realtime.EventBufferSize <= 0 {
		return fmt.Errorf("realtime.event_buffer_size must be positive")
	}
	if c.Realtime.EventsPerSecond <= 0 {
		return fmt.Errorf("realtime.events_per_second must be positive")
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}

	return nil
}
