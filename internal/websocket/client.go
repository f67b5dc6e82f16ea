// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

// Package websocket bridges gorilla/websocket connections to the
// realtime coordinator. Each connection runs a read pump feeding the
// coordinator and a write pump draining the per-connection send queue.
package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fieldsight/fieldsight/internal/config"
	"github.com/fieldsight/fieldsight/internal/logging"
	"github.com/fieldsight/fieldsight/internal/realtime"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024 // 64 KB
	defaultSendBuffer     = 64
)

// Client is the middleman between one websocket connection and the
// coordinator. It implements the coordinator's Conn interface.
type Client struct {
	id          string
	coordinator *realtime.Coordinator
	conn        *websocket.Conn
	send        chan realtime.Event

	writeWait      time.Duration
	pongWait       time.Duration
	maxMessageSize int64

	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection. Timeouts and queue
// sizes come from the realtime config, with sane fallbacks.
func NewClient(coordinator *realtime.Coordinator, conn *websocket.Conn, cfg config.RealtimeConfig) *Client {
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	maxMessageSize := cfg.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	sendBuffer := cfg.SendBufferSize
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}

	return &Client{
		id:             uuid.NewString(),
		coordinator:    coordinator,
		conn:           conn,
		send:           make(chan realtime.Event, sendBuffer),
		writeWait:      writeWait,
		pongWait:       pongWait,
		maxMessageSize: maxMessageSize,
	}
}

// ID returns the connection identifier bound into the registry.
func (c *Client) ID() string {
	return c.id
}

// Enqueue queues an outbound event without blocking. A full queue
// reports false and the coordinator drops the event for this recipient.
func (c *Client) Enqueue(ev realtime.Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Start registers the client with the coordinator and begins pumping.
func (c *Client) Start() {
	c.coordinator.Connect(c)
	go c.writePump()
	go c.readPump()
}

// readPump pumps inbound client events into the coordinator. Runs until
// the connection errors or closes, then tears the session down.
func (c *Client) readPump() {
	defer func() {
		c.coordinator.Disconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		var msg realtime.InboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		c.coordinator.HandleMessage(c, msg)
	}
}

// writePump drains the send queue to the wire and keeps the connection
// alive with transport-level pings.
func (c *Client) writePump() {
	pingPeriod := (c.pongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				logging.Debug().Err(err).Str("connection_id", c.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
