// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/fieldsight/fieldsight/internal/authz"
	"github.com/fieldsight/fieldsight/internal/config"
	"github.com/fieldsight/fieldsight/internal/logging"
	"github.com/fieldsight/fieldsight/internal/metrics"
	"github.com/fieldsight/fieldsight/internal/models"
	"github.com/fieldsight/fieldsight/internal/registry"
	"github.com/fieldsight/fieldsight/internal/validation"
)

// authorizeTimeout bounds a single join authorization call so a slow
// store cannot stall the coordinator loop indefinitely.
const authorizeTimeout = 5 * time.Second

// Conn is the transport-side view of a realtime connection. Enqueue
// must never block: it reports false when the connection's send buffer
// is full, in which case the event is dropped for that recipient only.
type Conn interface {
	ID() string
	Enqueue(Event) bool
}

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdMessage
)

type command struct {
	kind commandKind
	conn Conn
	msg  InboundMessage
}

// session is the coordinator's per-connection state. Owned exclusively
// by the coordinator loop; no locking.
type session struct {
	conn       Conn
	limiter    *rate.Limiter
	roomID     string
	userID     string
	username   string
	role       string
	canPublish bool
}

func (s *session) bound() bool { return s.roomID != "" }

// Coordinator serializes all room mutations through a single event
// loop. Transports submit commands via Connect, Disconnect and
// HandleMessage; the loop applies them to the registry in arrival
// order and fans out deltas. Because each connection's commands are
// processed in order and outbound events are queued per connection in
// FIFO order, a joiner's snapshot always precedes any delta that
// follows it.
type Coordinator struct {
	cfg        config.RealtimeConfig
	registry   *registry.Registry
	authorizer authz.Authorizer

	commands chan command
	sessions map[string]*session

	connCount atomic.Int64
}

// NewCoordinator wires the coordinator over the given registry and
// authorization facade.
func NewCoordinator(cfg config.RealtimeConfig, reg *registry.Registry, authorizer authz.Authorizer) *Coordinator {
	bufSize := cfg.EventBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Coordinator{
		cfg:        cfg,
		registry:   reg,
		authorizer: authorizer,
		commands:   make(chan command, bufSize),
		sessions:   make(map[string]*session),
	}
}

// Connect registers a live connection with the coordinator.
func (c *Coordinator) Connect(conn Conn) {
	c.commands <- command{kind: cmdConnect, conn: conn}
}

// Disconnect removes a connection. Safe to call more than once; a
// connection that was never registered is ignored.
func (c *Coordinator) Disconnect(conn Conn) {
	c.commands <- command{kind: cmdDisconnect, conn: conn}
}

// HandleMessage submits an inbound client event for processing. The
// send is blocking so a single connection's events stay in order.
func (c *Coordinator) HandleMessage(conn Conn, msg InboundMessage) {
	c.commands <- command{kind: cmdMessage, conn: conn, msg: msg}
}

// Stats reports live connection and room counts for health reporting.
// Safe to call from any goroutine.
func (c *Coordinator) Stats() (connections, rooms int) {
	r, _ := c.registry.Stats()
	return int(c.connCount.Load()), r
}

// Run processes commands until ctx is canceled. Designed to run under
// suture supervision; on shutdown every session is dropped and the
// error from ctx is returned.
func (c *Coordinator) Run(ctx context.Context) error {
	logging.Info().Msg("realtime coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case cmd := <-c.commands:
			c.dispatch(cmd)
		}
	}
}

func (c *Coordinator) shutdown() {
	for id, sess := range c.sessions {
		if sess.bound() {
			c.unbind(sess, false)
		}
		delete(c.sessions, id)
		c.connCount.Add(-1)
		metrics.ActiveConnections.Dec()
	}
	logging.Info().Msg("realtime coordinator stopped")
}

func (c *Coordinator) dispatch(cmd command) {
	switch cmd.kind {
	case cmdConnect:
		c.handleConnect(cmd.conn)
	case cmdDisconnect:
		c.handleDisconnect(cmd.conn)
	case cmdMessage:
		c.handleMessage(cmd.conn, cmd.msg)
	}
}

func (c *Coordinator) handleConnect(conn Conn) {
	if _, ok := c.sessions[conn.ID()]; ok {
		return
	}
	eps := c.cfg.EventsPerSecond
	if eps <= 0 {
		eps = 20
	}
	burst := c.cfg.EventBurst
	if burst <= 0 {
		burst = int(eps) * 2
	}
	c.sessions[conn.ID()] = &session{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(eps), burst),
	}
	c.connCount.Add(1)
	metrics.ActiveConnections.Inc()
	logging.Debug().Str("connection_id", conn.ID()).Msg("connection registered")
}

func (c *Coordinator) handleDisconnect(conn Conn) {
	sess, ok := c.sessions[conn.ID()]
	if !ok {
		return
	}
	if sess.bound() {
		c.unbind(sess, true)
	}
	delete(c.sessions, conn.ID())
	c.connCount.Add(-1)
	metrics.ActiveConnections.Dec()
	logging.Debug().Str("connection_id", conn.ID()).Msg("connection removed")
}

func (c *Coordinator) handleMessage(conn Conn, msg InboundMessage) {
	sess, ok := c.sessions[conn.ID()]
	if !ok {
		// Transport raced a disconnect; nothing to do.
		return
	}

	metrics.EventsTotal.WithLabelValues(msg.Type).Inc()

	// Ping bypasses the rate limiter so keepalives survive a chatty
	// client being throttled.
	if msg.Type == EventPing {
		c.enqueue(sess, Event{Type: EventPong})
		return
	}

	if !sess.limiter.Allow() {
		metrics.EventsThrottled.Inc()
		c.sendError(sess, CodeRateLimited, "event rate limit exceeded")
		return
	}

	switch msg.Type {
	case EventJoinRoom:
		c.handleJoin(sess, msg)
	case EventLeaveRoom:
		c.handleLeave(sess)
	case EventPositionUpdate:
		c.handlePosition(sess, msg)
	case EventSymbolCreate:
		c.handleSymbolCreate(sess, msg)
	case EventSymbolUpdate:
		c.handleSymbolUpdate(sess, msg)
	case EventSymbolDelete:
		c.handleSymbolDelete(sess, msg)
	default:
		c.sendError(sess, CodeBadPayload, "unknown event type: "+msg.Type)
	}
}

func (c *Coordinator) handleJoin(sess *session, msg InboundMessage) {
	var req JoinRequest
	if err := decode(msg.Data, &req); err != nil {
		c.sendJoinFailed(sess, CodeBadPayload, "malformed join payload")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		c.sendJoinFailed(sess, CodeBadPayload, verr.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	decision, err := c.authorizer.Authorize(ctx, req.RoomID, req.UserID, req.Password)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrRoomFull):
			c.sendJoinFailed(sess, CodeRoomFull, "room is at capacity")
		case errors.Is(err, authz.ErrUnauthorized), errors.Is(err, authz.ErrRoomNotFound):
			// Unknown rooms are reported as unauthorized so probing for
			// room ids reveals nothing.
			c.sendJoinFailed(sess, CodeUnauthorized, "room access denied")
		default:
			logging.Error().Err(err).Str("room_id", req.RoomID).Msg("authorization failed")
			c.sendJoinFailed(sess, CodeInternal, "authorization unavailable")
		}
		return
	}

	// Switching rooms is a re-join: release the current binding first
	// so the old room sees a leave before the new room sees a join.
	if sess.bound() {
		c.unbind(sess, true)
	}

	username := req.Username
	if username == "" {
		username = req.UserID
	}

	_, existed := c.registry.Member(req.RoomID, req.UserID)
	member := c.registry.AddOrReplaceMember(req.RoomID, req.UserID, sess.conn.ID(), username)

	sess.roomID = req.RoomID
	sess.userID = req.UserID
	sess.username = username
	sess.role = decision.Role
	sess.canPublish = decision.CanPublish

	// Snapshot is computed now, inside the loop, so nothing can mutate
	// the room between the snapshot and the joiner's first delta.
	snapshot, _ := c.registry.Snapshot(req.RoomID)
	c.enqueue(sess, Event{Type: EventRoomSnapshot, Data: snapshot})

	// A user whose connection was superseded is not a new member; the
	// rest of the room already sees them.
	if !existed {
		c.broadcast(sess.roomID, Event{Type: EventMemberJoined, Data: MemberJoined{
			UserID:   member.UserID,
			Username: member.Username,
			IsOnline: member.IsOnline,
			JoinedAt: member.JoinedAt.UTC().Format(time.RFC3339Nano),
		}}, sess.conn.ID())
	}

	c.updateRoomGauge()
	logging.Info().
		Str("room_id", req.RoomID).
		Str("user_id", req.UserID).
		Str("role", decision.Role).
		Msg("member joined room")
}

func (c *Coordinator) handleLeave(sess *session) {
	if !sess.bound() {
		c.sendError(sess, CodeNotInRoom, "not bound to a room")
		return
	}
	c.unbind(sess, true)
}

// unbind releases a session's room binding: removes the member (guarded
// by connection id so a superseded connection cannot evict its
// successor), reclaims the room when it empties, and optionally
// notifies the remaining members.
func (c *Coordinator) unbind(sess *session, notify bool) {
	roomID, userID := sess.roomID, sess.userID
	removed := c.registry.RemoveMember(roomID, userID, sess.conn.ID())
	sess.roomID, sess.userID, sess.username, sess.role = "", "", "", ""
	sess.canPublish = false

	if !removed {
		// Superseded binding: the user lives on under a newer connection.
		return
	}

	if c.registry.ReclaimIfEmpty(roomID) {
		logging.Info().Str("room_id", roomID).Msg("room reclaimed")
	} else if notify {
		c.broadcast(roomID, Event{Type: EventMemberLeft, Data: MemberLeft{
			UserID: userID,
			LeftAt: time.Now().UTC().Format(time.RFC3339Nano),
		}}, "")
	}

	c.updateRoomGauge()
	logging.Info().Str("room_id", roomID).Str("user_id", userID).Msg("member left room")
}

// requirePublish checks the session is bound and its role grants the
// publish action. The offending connection gets a typed error; nothing
// reaches the rest of the room.
func (c *Coordinator) requirePublish(sess *session, what string) bool {
	if !sess.bound() {
		c.sendError(sess, CodeNotInRoom, "join a room before "+what)
		return false
	}
	if !sess.canPublish {
		logging.Debug().
			Str("connection_id", sess.conn.ID()).
			Str("role", sess.role).
			Msg("publish denied for role")
		c.sendError(sess, CodeUnauthorized, "role does not permit "+what)
		return false
	}
	return true
}

func (c *Coordinator) handlePosition(sess *session, msg InboundMessage) {
	if !c.requirePublish(sess, "publishing positions") {
		return
	}

	var coords models.Coordinates
	if err := decode(msg.Data, &coords); err != nil {
		c.sendError(sess, CodeBadPayload, "malformed position payload")
		return
	}
	if verr := validation.ValidateStruct(&coords); verr != nil {
		c.sendError(sess, CodeBadPayload, verr.Error())
		return
	}

	if !c.registry.UpdateMemberPosition(sess.roomID, sess.userID, coords) {
		c.sendError(sess, CodeNotInRoom, "membership no longer current")
		return
	}

	// Positions fan out to everyone except the sender, who already
	// knows where they are.
	c.broadcast(sess.roomID, Event{Type: EventPositionUpdate, Data: PositionDelta{
		Coordinates: coords,
		UserID:      sess.userID,
	}}, sess.conn.ID())
}

func (c *Coordinator) handleSymbolCreate(sess *session, msg InboundMessage) {
	if !c.requirePublish(sess, "creating symbols") {
		return
	}

	var req SymbolCreateRequest
	if err := decode(msg.Data, &req); err != nil {
		c.sendError(sess, CodeBadPayload, "malformed symbol payload")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		c.sendError(sess, CodeBadPayload, verr.Error())
		return
	}

	symbol := models.Symbol{
		Type:      req.Type,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Label:     req.Label,
		Color:     req.Color,
		Size:      req.Size,
		Rotation:  req.Rotation,
	}
	if req.Visible != nil {
		symbol.Visible = *req.Visible
	} else {
		symbol.Visible = true
	}

	created, err := c.registry.CreateSymbol(sess.roomID, sess.userID, symbol)
	if err != nil {
		c.sendError(sess, CodeNotInRoom, "room no longer exists")
		return
	}

	// Symbol deltas go to every member including the creator, who needs
	// the server-assigned id and timestamps.
	c.broadcast(sess.roomID, Event{Type: EventSymbolCreated, Data: created}, "")
}

func (c *Coordinator) handleSymbolUpdate(sess *session, msg InboundMessage) {
	if !c.requirePublish(sess, "updating symbols") {
		return
	}

	var req SymbolUpdateRequest
	if err := decode(msg.Data, &req); err != nil {
		c.sendError(sess, CodeBadPayload, "malformed symbol payload")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		c.sendError(sess, CodeBadPayload, verr.Error())
		return
	}

	updated, err := c.registry.UpdateSymbol(sess.roomID, req.ID, req.SymbolPatch)
	if err != nil {
		c.sendError(sess, CodeSymbolNotFound, "symbol not found: "+req.ID)
		return
	}

	c.broadcast(sess.roomID, Event{Type: EventSymbolUpdated, Data: updated}, "")
}

func (c *Coordinator) handleSymbolDelete(sess *session, msg InboundMessage) {
	if !c.requirePublish(sess, "deleting symbols") {
		return
	}

	var req SymbolDeleteRequest
	if err := decode(msg.Data, &req); err != nil {
		c.sendError(sess, CodeBadPayload, "malformed symbol payload")
		return
	}
	if req.ID == "" {
		c.sendError(sess, CodeBadPayload, "symbol id required")
		return
	}

	if !c.registry.DeleteSymbol(sess.roomID, req.ID) {
		c.sendError(sess, CodeSymbolNotFound, "symbol not found: "+req.ID)
		return
	}

	c.broadcast(sess.roomID, Event{Type: EventSymbolDeleted, Data: SymbolDeleted{ID: req.ID}}, "")
}

// broadcast fans an event out to every connection bound to the room,
// except excludeConnID when non-empty. Per-recipient drop on full
// buffer; one slow consumer never stalls the rest of the room.
func (c *Coordinator) broadcast(roomID string, ev Event, excludeConnID string) {
	for _, connID := range c.registry.Connections(roomID) {
		if connID == excludeConnID {
			continue
		}
		recipient, ok := c.sessions[connID]
		if !ok {
			continue
		}
		c.enqueue(recipient, ev)
	}
}

func (c *Coordinator) enqueue(sess *session, ev Event) {
	if !sess.conn.Enqueue(ev) {
		metrics.BroadcastDropped.Inc()
		logging.Warn().
			Str("connection_id", sess.conn.ID()).
			Str("event_type", ev.Type).
			Msg("send buffer full, event dropped for recipient")
		return
	}
	metrics.DeltasDelivered.WithLabelValues(ev.Type).Inc()
}

func (c *Coordinator) sendError(sess *session, code, message string) {
	metrics.EventErrors.WithLabelValues(code).Inc()
	c.enqueue(sess, Event{Type: EventError, Data: ErrorEvent{Code: code, Message: message}})
}

func (c *Coordinator) sendJoinFailed(sess *session, code, message string) {
	metrics.EventErrors.WithLabelValues(code).Inc()
	c.enqueue(sess, Event{Type: EventJoinFailed, Data: ErrorEvent{Code: code, Message: message}})
}

func (c *Coordinator) updateRoomGauge() {
	rooms, _ := c.registry.Stats()
	metrics.ActiveRooms.Set(float64(rooms))
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, v)
}
