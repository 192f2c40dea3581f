// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package realtime

import (
	"context"

	"github.com/meridianops/meridian/internal/bus"
	"github.com/meridianops/meridian/internal/logging"
)

// Bridge feeds the hub from the in-process message bus.
type Bridge struct {
	hub    *Hub
	events *bus.Bus
}

// NewBridge connects a hub to the bus.
func NewBridge(hub *Hub, events *bus.Bus) *Bridge {
	return &Bridge{hub: hub, events: events}
}

// Run consumes both topics until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	eventMsgs, err := b.events.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	alertMsgs, err := b.events.SubscribeAlerts(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-eventMsgs:
			if !ok {
				return nil
			}
			ev, err := bus.DecodeEvent(msg)
			if err != nil {
				logging.Error().Err(err).Msg("Failed to decode event frame for realtime")
			} else {
				b.hub.BroadcastEvent(ev)
			}
			msg.Ack()
		case msg, ok := <-alertMsgs:
			if !ok {
				return nil
			}
			alert, err := bus.DecodeAlert(msg)
			if err != nil {
				logging.Error().Err(err).Msg("Failed to decode alert frame for realtime")
			} else {
				b.hub.BroadcastAlert(alert)
			}
			msg.Ack()
		}
	}
}
