// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package realtime

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/metrics"
	"github.com/meridianops/meridian/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin enforcement happens in the CORS layer before the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// clientIDCounter hands out monotonically increasing client IDs so the hub
// can iterate the registry in a stable order.
var clientIDCounter atomic.Uint64

// Client bridges one websocket connection and the hub. At-least-once per
// client: a reconnecting client may see duplicates, never gaps while
// connected.
type Client struct {
	id    uint64
	orgID int64
	hub   *Hub
	conn  *websocket.Conn
	send  chan Frame

	mu         sync.Mutex
	filter     *SubscriptionFilter
	subscribed bool
	missed     int
}

// ServeClient upgrades the request and registers the connection with the
// hub. orgID is the caller's authenticated org.
func (h *Hub) ServeClient(w http.ResponseWriter, r *http.Request, orgID int64) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{
		id:    clientIDCounter.Add(1),
		orgID: orgID,
		hub:   h,
		conn:  conn,
		send:  make(chan Frame, 256),
	}
	h.Register <- client
	go client.writePump()
	go client.readPump()
	return nil
}

// wants reports whether the client's current filter accepts the event.
func (c *Client) wants(ev *models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.Matches(ev)
}

func (c *Client) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *Client) heartbeatDelivered() {
	c.mu.Lock()
	c.missed = 0
	c.mu.Unlock()
}

func (c *Client) heartbeatMissed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missed++
	return c.missed
}

// readPump consumes subscribe/unsubscribe/ping messages until the
// connection drops, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("Unexpected websocket close")
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.Protocol != ProtocolVersion {
			logging.Warn().Uint64("client_id", c.id).Int("protocol", msg.Protocol).
				Msg("Rejecting subscribe with unknown protocol version")
			return
		}
		c.mu.Lock()
		c.filter = msg.Filter
		c.subscribed = true
		c.mu.Unlock()
	case MessageTypeUnsubscribe:
		c.mu.Lock()
		c.filter = nil
		c.subscribed = false
		c.mu.Unlock()
	case MessageTypePing:
		c.mu.Lock()
		c.missed = 0
		c.mu.Unlock()
		select {
		case c.send <- newFrame(FrameTypeHeartbeat, nil):
		default:
		}
	}
}

// writePump writes queued frames and protocol-level pings until the send
// channel closes.
func (c *Client) writePump() {
	ping := time.NewTicker(pongWait * 9 / 10)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
			metrics.RealtimeFramesSent.WithLabelValues(frame.Type).Inc()
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
