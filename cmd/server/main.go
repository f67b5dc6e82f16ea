// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

// Package main is the entry point for the Fieldsight server.
//
// Fieldsight keeps squads of mobile clients in sync inside named rooms:
// live member positions and a shared layer of tactical map symbols. A
// client joins a room over a websocket, receives a full snapshot of the
// room state, and from then on only deltas.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML, env)
//  2. Room store: BadgerDB-backed durable room records
//  3. Authorization facade: Casbin RBAC behind a circuit breaker
//  4. Realtime coordinator: single event loop owning all room state
//  5. HTTP server: Chi router with room management, login, health,
//     metrics and the websocket endpoint
//
// The coordinator and the HTTP server run under a suture supervision
// tree so either can crash and restart without taking the other down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (CONFIG_PATH),
// built-in defaults.
//
// For JWT authentication (default):
//   - JWT_SECRET: 32+ character secret for token signing
//   - ADMIN_USERNAME / ADMIN_PASSWORD: bootstrap admin account
//
// For development:
//   - AUTH_MODE=none disables login (rejected in production)
//   - FIELDSIGHT_STORE_IN_MEMORY=true runs without a data directory
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// listener drains in-flight requests, the coordinator drops its
// sessions, and the room store closes last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldsight/fieldsight/internal/api"
	"github.com/fieldsight/fieldsight/internal/auth"
	"github.com/fieldsight/fieldsight/internal/authz"
	"github.com/fieldsight/fieldsight/internal/config"
	"github.com/fieldsight/fieldsight/internal/logging"
	"github.com/fieldsight/fieldsight/internal/realtime"
	"github.com/fieldsight/fieldsight/internal/registry"
	"github.com/fieldsight/fieldsight/internal/supervisor"
	"github.com/fieldsight/fieldsight/internal/supervisor/services"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("authz_enabled", cfg.Authz.Enabled).
		Str("store_path", cfg.Store.Path).
		Msg("Starting Fieldsight")

	// Room store. The Badger handle is shared by the authorization
	// facade and the room management API.
	db, err := authz.OpenDB(cfg.Store.Path, cfg.Store.InMemory)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open room store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing room store")
		}
	}()
	store := authz.NewRoomStore(db)

	// Authorization facade: store + Casbin roles behind a breaker, or
	// open trust-the-join mode when disabled. The enforcer also backs
	// the manage checks on the room management API.
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build authorization enforcer")
	}
	reg := registry.New()
	var authorizer authz.Authorizer
	if cfg.Authz.Enabled {
		authorizer = authz.NewBreakerAuthorizer(
			authz.NewStoreAuthorizer(store, enforcer, reg.MemberCount, cfg.Authz.DefaultRole),
		)
	} else {
		logging.Warn().Msg("Authorization facade disabled: rooms are created on first join")
		authorizer = authz.Open{Role: cfg.Authz.DefaultRole}
	}

	coordinator := realtime.NewCoordinator(cfg.Realtime, reg, authorizer)

	// Authentication for the HTTP surface.
	var jwtManager *auth.JWTManager
	var verifier *auth.CredentialVerifier
	if cfg.Security.AuthMode == config.AuthModeJWT {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		verifier, err = auth.NewCredentialVerifier(cfg.Security.AdminUsername, cfg.Security.AdminPassword)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize admin credentials")
		}
	}

	handler := api.NewHandler(cfg, coordinator, reg, store, enforcer, jwtManager, verifier, version)
	router := api.NewRouter(handler, &cfg.Security)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree: coordinator in the realtime layer, HTTP server
	// in the api layer.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddRealtimeService(services.NewCoordinatorService(coordinator))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
	}

	logging.Info().Msg("Fieldsight stopped")
}
