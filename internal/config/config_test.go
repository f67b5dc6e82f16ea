// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8474 {
		t.Errorf("Server.Port = %d, want 8474", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Environment != "development" {
		t.Errorf("Server.Environment = %q, want development", cfg.Server.Environment)
	}

	if cfg.Realtime.SendBufferSize != 64 {
		t.Errorf("Realtime.SendBufferSize = %d, want 64", cfg.Realtime.SendBufferSize)
	}
	if cfg.Realtime.PongWait != 60*time.Second {
		t.Errorf("Realtime.PongWait = %v, want 60s", cfg.Realtime.PongWait)
	}
	if cfg.Realtime.EventsPerSecond != 20 {
		t.Errorf("Realtime.EventsPerSecond = %v, want 20", cfg.Realtime.EventsPerSecond)
	}

	if cfg.Security.AuthMode != "jwt" {
		t.Errorf("Security.AuthMode = %q, want jwt", cfg.Security.AuthMode)
	}
	if cfg.Security.SessionTimeout != 24*time.Hour {
		t.Errorf("Security.SessionTimeout = %v, want 24h", cfg.Security.SessionTimeout)
	}

	if !cfg.Authz.Enabled {
		t.Error("Authz.Enabled should be true by default")
	}
	if cfg.Authz.DefaultRole != "member" {
		t.Errorf("Authz.DefaultRole = %q, want member", cfg.Authz.DefaultRole)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWTSecret = strings.Repeat("s", 32)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default with secret",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "jwt mode requires long secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "short" },
			wantErr: "jwt_secret",
		},
		{
			name: "auth none forbidden in production",
			mutate: func(c *Config) {
				c.Security.AuthMode = "none"
				c.Server.Environment = "production"
			},
			wantErr: "auth_mode=none",
		},
		{
			name:   "auth none allowed in development",
			mutate: func(c *Config) { c.Security.AuthMode = "none" },
		},
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Security.AuthMode = "basic" },
			wantErr: "auth_mode",
		},
		{
			name: "store path required when persistent",
			mutate: func(c *Config) {
				c.Store.Path = ""
				c.Store.InMemory = false
			},
			wantErr: "store.path",
		},
		{
			name: "in-memory store needs no path",
			mutate: func(c *Config) {
				c.Store.Path = ""
				c.Store.InMemory = true
			},
		},
		{
			name:    "zero send buffer rejected",
			mutate:  func(c *Config) { c.Realtime.SendBufferSize = 0 },
			wantErr: "send_buffer_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"JWT_SECRET", "security.jwt_secret"},
		{"LOG_LEVEL", "logging.level"},
		{"STORE_PATH", "store.path"},
		{"FIELDSIGHT_SERVER_HOST", "server.host"},
		{"FIELDSIGHT_REALTIME_SEND_BUFFER_SIZE", "realtime.send_buffer_size"},
		{"FIELDSIGHT_AUTHZ_ENABLED", "authz.enabled"},
		{"PATH", ""},     // unrelated env vars are skipped
		{"HOSTNAME", ""}, // unrelated env vars are skipped
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9000
security:
  auth_mode: none
store:
  in_memory: true
realtime:
  send_buffer_size: 128
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000 from file", cfg.Server.Port)
	}
	if cfg.Realtime.SendBufferSize != 128 {
		t.Errorf("Realtime.SendBufferSize = %d, want 128 from file", cfg.Realtime.SendBufferSize)
	}
	// Defaults survive for settings the file does not mention.
	if cfg.Realtime.PongWait != 60*time.Second {
		t.Errorf("Realtime.PongWait = %v, want default 60s", cfg.Realtime.PongWait)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("AUTH_MODE", "none")
	t.Setenv("FIELDSIGHT_STORE_IN_MEMORY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env override 9100", cfg.Server.Port)
	}
}
