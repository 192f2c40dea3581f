// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/meridianops/meridian/internal/bus"
	"github.com/meridianops/meridian/internal/models"
)

func startHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func addStubClient(h *Hub, orgID int64, filter *SubscriptionFilter, buffer int) *Client {
	c := &Client{
		id:         clientIDCounter.Add(1),
		orgID:      orgID,
		hub:        h,
		send:       make(chan Frame, buffer),
		filter:     filter,
		subscribed: true,
	}
	h.Register <- c
	return c
}

func waitFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case frame := <-c.send:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
		return Frame{}
	}
}

func TestHubDispatchesFilteredEvents(t *testing.T) {
	h := NewHub(time.Hour)
	startHub(t, h)

	protestClient := addStubClient(h, 1, &SubscriptionFilter{
		Categories: []models.Category{models.CategoryProtest},
	}, 8)
	healthClient := addStubClient(h, 1, &SubscriptionFilter{
		Categories: []models.Category{models.CategoryHealth},
	}, 8)

	ev := &models.Event{EventID: "ev-1", Category: models.CategoryProtest}
	h.BroadcastEvent(ev)

	frame := waitFrame(t, protestClient)
	if frame.Type != FrameTypeEventNew {
		t.Errorf("frame type = %q", frame.Type)
	}
	got, ok := frame.Data.(*models.Event)
	if !ok || got.EventID != "ev-1" {
		t.Errorf("frame data = %#v", frame.Data)
	}

	select {
	case frame := <-healthClient.send:
		t.Errorf("health subscriber received %q frame", frame.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubScopesAlertsToOrg(t *testing.T) {
	h := NewHub(time.Hour)
	startHub(t, h)

	orgOne := addStubClient(h, 1, nil, 8)
	orgTwo := addStubClient(h, 2, nil, 8)

	h.BroadcastAlert(&bus.Alert{OrgID: 2, Reason: "priority above threshold"})

	frame := waitFrame(t, orgTwo)
	if frame.Type != FrameTypeAlertTriggered {
		t.Errorf("frame type = %q", frame.Type)
	}

	select {
	case frame := <-orgOne.send:
		t.Errorf("other org received %q frame", frame.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubUnsubscribedClientGetsNoEvents(t *testing.T) {
	h := NewHub(time.Hour)
	startHub(t, h)

	c := addStubClient(h, 1, nil, 8)
	c.mu.Lock()
	c.subscribed = false
	c.mu.Unlock()

	h.BroadcastEvent(&models.Event{EventID: "ev-2", Category: models.CategoryCrime})

	select {
	case frame := <-c.send:
		t.Errorf("unsubscribed client received %q frame", frame.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubEvictsClientAfterMissedHeartbeats(t *testing.T) {
	h := NewHub(20 * time.Millisecond)
	startHub(t, h)

	// Zero-buffer channel with no reader: every heartbeat send fails.
	stuck := addStubClient(h, 1, nil, 0)
	_ = stuck

	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not evicted after missed heartbeats")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubHeartbeatDelivery(t *testing.T) {
	h := NewHub(20 * time.Millisecond)
	startHub(t, h)

	c := addStubClient(h, 1, nil, 8)
	frame := waitFrame(t, c)
	if frame.Type != FrameTypeHeartbeat {
		t.Errorf("frame type = %q, want heartbeat", frame.Type)
	}
	if frame.Timestamp.IsZero() {
		t.Error("heartbeat frame missing timestamp")
	}
}
