// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridianops/meridian/internal/bus"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/metrics"
	"github.com/meridianops/meridian/internal/models"
)

// maxMissedHeartbeats is how many consecutive undeliverable heartbeats a
// client may accumulate before the hub closes it.
const maxMissedHeartbeats = 2

// Hub maintains the set of active clients and dispatches filtered frames.
// The registry is read-mostly: dispatch takes the read lock, lifecycle
// events take the write lock.
type Hub struct {
	clients    map[*Client]bool
	dispatch   chan dispatchItem
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	heartbeatInterval time.Duration
}

type dispatchItem struct {
	frame Frame
	// orgID scopes org-only frames; zero means every subscribed client is
	// a candidate.
	orgID int64
	event *models.Event
}

// NewHub creates a hub with the given heartbeat period.
func NewHub(heartbeatInterval time.Duration) *Hub {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &Hub{
		clients:           make(map[*Client]bool),
		dispatch:          make(chan dispatchItem, 256),
		Register:          make(chan *Client),
		Unregister:        make(chan *Client),
		heartbeatInterval: heartbeatInterval,
	}
}

// Run operates the hub until the context is cancelled. Designed for suture
// supervision: on cancellation every client is closed and ctx.Err() is
// returned so the supervisor sees a clean stop.
//
// Priority order when multiple channels are ready: shutdown, then client
// lifecycle, then dispatch. Lifecycle-first keeps the registry consistent
// before any frame is routed.
func (h *Hub) Run(ctx context.Context) error {
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Str("component", "realtime-hub").Msg("Realtime hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Str("component", "realtime-hub").Msg("Realtime hub stopped")
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case item := <-h.dispatch:
			h.dispatchToClients(item)
		case <-heartbeat.C:
			h.sendHeartbeats()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.RealtimeClients.Set(float64(total))
	logging.Info().Uint64("client_id", client.id).Int64("org_id", client.orgID).
		Int("total_clients", total).Msg("Realtime client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.RealtimeClients.Set(float64(total))
	logging.Info().Uint64("client_id", client.id).
		Int("total_clients", total).Msg("Realtime client disconnected")
}

// BroadcastEvent routes a newly persisted event to clients whose
// subscription filter matches.
func (h *Hub) BroadcastEvent(ev *models.Event) {
	select {
	case h.dispatch <- dispatchItem{frame: newFrame(FrameTypeEventNew, ev), event: ev}:
	default:
		logging.Warn().Str("event_id", ev.EventID).Msg("Dispatch queue full, dropping event frame")
	}
}

// BroadcastAlert routes an alert to clients authenticated into its org.
func (h *Hub) BroadcastAlert(alert *bus.Alert) {
	select {
	case h.dispatch <- dispatchItem{frame: newFrame(FrameTypeAlertTriggered, alert), orgID: alert.OrgID}:
	default:
		logging.Warn().Int64("org_id", alert.OrgID).Msg("Dispatch queue full, dropping alert frame")
	}
}

// dispatchToClients delivers one frame to every eligible client. Clients
// are walked in ID order so delivery is reproducible; a client whose send
// buffer is full is dropped.
func (h *Hub) dispatchToClients(item dispatchItem) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range h.sortedClientsLocked() {
		if item.orgID != 0 && client.orgID != item.orgID {
			continue
		}
		if item.event != nil && !client.wants(item.event) {
			continue
		}
		if item.event != nil && !client.isSubscribed() {
			continue
		}
		select {
		case client.send <- item.frame:
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
}

// sendHeartbeats emits the periodic heartbeat and evicts clients that have
// missed too many in a row.
func (h *Hub) sendHeartbeats() {
	h.mu.Lock()
	defer h.mu.Unlock()

	frame := newFrame(FrameTypeHeartbeat, nil)
	var toRemove []*Client
	for _, client := range h.sortedClientsLocked() {
		select {
		case client.send <- frame:
			client.heartbeatDelivered()
		default:
			if client.heartbeatMissed() >= maxMissedHeartbeats {
				toRemove = append(toRemove, client)
			}
		}
	}
	for _, client := range toRemove {
		logging.Warn().Uint64("client_id", client.id).
			Msg("Closing client after missed heartbeats")
		close(client.send)
		delete(h.clients, client)
	}
}

// sortedClientsLocked returns the registry ordered by client ID. Callers
// must hold the lock.
func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.sortedClientsLocked() {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
