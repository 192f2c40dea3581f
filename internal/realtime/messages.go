// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package realtime

import "time"

// ProtocolVersion is the wire protocol version carried on subscribe.
const ProtocolVersion = 1

// Client-to-server message types.
const (
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
)

// Server-to-client frame types.
const (
	FrameTypeEventNew       = "event:new"
	FrameTypeAlertTriggered = "alert:triggered"
	FrameTypeHeartbeat      = "heartbeat"
)

// ClientMessage is one inbound frame from a client.
type ClientMessage struct {
	Type     string              `json:"type"`
	Protocol int                 `json:"protocol,omitempty"`
	Filter   *SubscriptionFilter `json:"filter,omitempty"`
}

// Frame is one outbound message. One JSON document per websocket frame.
type Frame struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

func newFrame(frameType string, data interface{}) Frame {
	return Frame{Type: frameType, Timestamp: time.Now().UTC(), Data: data}
}
