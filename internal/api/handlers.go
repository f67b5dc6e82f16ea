// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fieldsight/fieldsight/internal/auth"
	"github.com/fieldsight/fieldsight/internal/authz"
	"github.com/fieldsight/fieldsight/internal/config"
	"github.com/fieldsight/fieldsight/internal/logging"
	"github.com/fieldsight/fieldsight/internal/models"
	"github.com/fieldsight/fieldsight/internal/realtime"
	"github.com/fieldsight/fieldsight/internal/registry"
	ws "github.com/fieldsight/fieldsight/internal/websocket"
)

type identityKey struct{}

// identityFrom returns the authenticated username, or "" when the
// request carries no identity.
func identityFrom(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(string); ok {
		return id
	}
	return ""
}

// Handler bundles the HTTP endpoint implementations and their
// dependencies.
type Handler struct {
	cfg         *config.Config
	coordinator *realtime.Coordinator
	reg         *registry.Registry
	store       *authz.RoomStore
	enforcer    *authz.Enforcer
	jwt         *auth.JWTManager
	verifier    *auth.CredentialVerifier
	version     string
	startTime   time.Time
}

// NewHandler wires the handler. jwt and verifier may be nil when
// auth_mode is "none".
func NewHandler(cfg *config.Config, coordinator *realtime.Coordinator, reg *registry.Registry, store *authz.RoomStore, enforcer *authz.Enforcer, jwtManager *auth.JWTManager, verifier *auth.CredentialVerifier, version string) *Handler {
	return &Handler{
		cfg:         cfg,
		coordinator: coordinator,
		reg:         reg,
		store:       store,
		enforcer:    enforcer,
		jwt:         jwtManager,
		verifier:    verifier,
		version:     version,
		startTime:   time.Now(),
	}
}

// canManage reports whether identity holds a role in the room that
// grants the manage action: deleting the room and reading its invite
// code. Users with no recorded role never manage.
func (h *Handler) canManage(record *authz.RoomRecord, identity string) bool {
	role := record.RoleFor(identity)
	if role == "" {
		return false
	}
	if h.enforcer == nil {
		return role == "owner"
	}
	allowed, err := h.enforcer.Enforce(role, authz.ActionManage)
	if err != nil {
		logging.Error().Err(err).Str("room_id", record.ID).Msg("manage enforcement failed")
		return false
	}
	return allowed
}

// Authenticate validates the session token on protected routes. With
// auth_mode "none" every request passes with the identity taken from
// the X-User-ID header, for development and trusted deployments.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.Security.AuthMode == config.AuthModeNone {
			identity := r.Header.Get("X-User-ID")
			if identity == "" {
				identity = "anonymous"
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
			return
		}

		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
			return
		}

		claims, err := h.jwt.ValidateToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, claims.Username)))
	})
}

// bearerToken extracts the token from the Authorization header, the
// session cookie, or the token query parameter. The query parameter
// exists for websocket dials, where mobile clients cannot always set
// headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("fieldsight_token"); err == nil {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// Health reports full server health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	connections, rooms := h.coordinator.Stats()

	storeConnected := true
	if h.store != nil {
		if _, err := h.store.List(r.Context()); err != nil {
			storeConnected = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !storeConnected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondSuccess(w, code, &models.HealthStatus{
		Status:            status,
		Version:           h.version,
		StoreConnected:    storeConnected,
		ActiveRooms:       rooms,
		ActiveConnections: connections,
		Uptime:            time.Since(h.startTime).Seconds(),
	})
}

// HealthLive is the liveness probe: the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: dependencies are reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if _, err := h.store.List(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "NOT_READY", "room store unavailable", err)
			return
		}
	}
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// Login authenticates the configured admin account and returns a JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Security.AuthMode == config.AuthModeNone {
		respondError(w, http.StatusForbidden, "AUTH_DISABLED", "authentication is disabled", nil)
		return
	}

	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if !h.verifier.Verify(req.Username, req.Password) {
		logging.Warn().Str("username", sanitizeLogValue(req.Username)).Msg("failed login attempt")
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, "owner")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to issue token", err)
		return
	}

	expiresAt := time.Now().Add(h.jwt.Timeout())
	http.SetCookie(w, &http.Cookie{
		Name:     "fieldsight_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respondSuccess(w, http.StatusOK, map[string]string{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// CreateRoomRequest is the body of POST /api/v1/rooms.
type CreateRoomRequest struct {
	ID         string `json:"id,omitempty" validate:"omitempty,max=128"`
	Name       string `json:"name" validate:"required,max=256"`
	Password   string `json:"password,omitempty" validate:"omitempty,min=4,max=256"`
	MaxMembers int    `json:"max_members,omitempty" validate:"omitempty,gte=0,lte=1024"`
}

// roomView is the wire shape of a room record; the password hash never
// leaves the store.
type roomView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id"`
	HasPassword bool      `json:"has_password"`
	InviteCode  string    `json:"invite_code,omitempty"`
	MaxMembers  int       `json:"max_members"`
	LiveMembers int       `json:"live_members"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handler) roomViewOf(record *authz.RoomRecord, includeInvite bool) *roomView {
	view := &roomView{
		ID:          record.ID,
		Name:        record.Name,
		OwnerID:     record.OwnerID,
		HasPassword: record.PasswordHash != "",
		MaxMembers:  record.MaxMembers,
		LiveMembers: h.reg.MemberCount(record.ID),
		CreatedAt:   record.CreatedAt,
	}
	if includeInvite {
		view.InviteCode = record.InviteCode
	}
	return view
}

// CreateRoom provisions a durable room record.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	record := &authz.RoomRecord{
		ID:         req.ID,
		Name:       req.Name,
		OwnerID:    identityFrom(r.Context()),
		MaxMembers: req.MaxMembers,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if req.MaxMembers == 0 {
		record.MaxMembers = h.cfg.Authz.MaxMembersDefault
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to hash room password", err)
			return
		}
		record.PasswordHash = hash
	}

	if err := h.store.Create(r.Context(), record); err != nil {
		respondError(w, http.StatusConflict, "ROOM_EXISTS", "room already exists", err)
		return
	}

	logging.Info().Str("room_id", record.ID).Str("owner_id", record.OwnerID).Msg("room created")
	respondSuccess(w, http.StatusCreated, h.roomViewOf(record, true))
}

// ListRooms returns every provisioned room.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to list rooms", err)
		return
	}

	identity := identityFrom(r.Context())
	views := make([]*roomView, 0, len(records))
	for _, record := range records {
		views = append(views, h.roomViewOf(record, h.canManage(record, identity)))
	}
	respondSuccess(w, http.StatusOK, views)
}

// GetRoom returns one room record.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	record, err := h.store.Get(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, authz.ErrRoomNotFound) {
			respondError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to load room", err)
		return
	}

	respondSuccess(w, http.StatusOK, h.roomViewOf(record, h.canManage(record, identityFrom(r.Context()))))
}

// DeleteRoom removes a room record. Only the room owner may delete it.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	record, err := h.store.Get(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, authz.ErrRoomNotFound) {
			respondError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to load room", err)
		return
	}

	if !h.canManage(record, identityFrom(r.Context())) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "role does not permit managing this room", nil)
		return
	}

	if err := h.store.Delete(r.Context(), roomID); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete room", err)
		return
	}

	logging.Info().Str("room_id", roomID).Msg("room deleted")
	respondSuccess(w, http.StatusOK, map[string]string{"id": roomID})
}

// getUpgrader builds the websocket upgrader with origin checks against
// the configured CORS origins. Requests without an Origin header are
// allowed: mobile clients and CLI tools do not send one, and the join
// itself is still gated by the authorization facade.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected: origin not allowed")
	return false
}

// WebSocket upgrades the connection and hands it to the coordinator.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ws.NewClient(h.coordinator, conn, h.cfg.Realtime).Start()
}
