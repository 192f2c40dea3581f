// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package bus is the in-process pub/sub spine between the ingest pipeline
// and its consumers (realtime broker, dossier matcher). Delivery is
// at-least-once within the process; consumers must tolerate duplicates.
package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
)

// Topics carried by the bus.
const (
	TopicEventCreated   = "events.created"
	TopicAlertTriggered = "alerts.triggered"
)

// Alert is the payload for alerts.triggered: an event that crossed an
// org's alerting configuration.
type Alert struct {
	OrgID  int64         `json:"org_id"`
	Event  *models.Event `json:"event"`
	Reason string        `json:"reason"`
}

// Bus wraps a watermill GoChannel Pub/Sub with typed publish helpers.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates the in-process bus. The output buffer absorbs short consumer
// stalls; a full buffer blocks the publisher rather than dropping.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, busLogger{}),
	}
}

// PublishEventCreated announces a newly persisted, enriched event.
func (b *Bus) PublishEventCreated(event *models.Event) error {
	return b.publishJSON(TopicEventCreated, event)
}

// PublishAlertTriggered announces an alert for one org.
func (b *Bus) PublishAlertTriggered(alert *Alert) error {
	return b.publishJSON(TopicAlertTriggered, alert)
}

// SubscribeEvents returns the events.created stream.
func (b *Bus) SubscribeEvents(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicEventCreated)
}

// SubscribeAlerts returns the alerts.triggered stream.
func (b *Bus) SubscribeAlerts(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicAlertTriggered)
}

// Close shuts the pub/sub down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

func (b *Bus) publishJSON(topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// DecodeEvent unmarshals an events.created message.
func DecodeEvent(msg *message.Message) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("invalid events.created payload: %w", err)
	}
	return &event, nil
}

// DecodeAlert unmarshals an alerts.triggered message.
func DecodeAlert(msg *message.Message) (*Alert, error) {
	var alert Alert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		return nil, fmt.Errorf("invalid alerts.triggered payload: %w", err)
	}
	return &alert, nil
}

// busLogger adapts watermill logging onto zerolog.
type busLogger struct {
	fields watermill.LogFields
}

func (l busLogger) Error(msg string, err error, fields watermill.LogFields) {
	logging.Error().Err(err).Fields(map[string]interface{}(l.merged(fields))).Msg(msg)
}

func (l busLogger) Info(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]interface{}(l.merged(fields))).Msg(msg)
}

func (l busLogger) Debug(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]interface{}(l.merged(fields))).Msg(msg)
}

func (l busLogger) Trace(msg string, fields watermill.LogFields) {
	logging.Trace().Fields(map[string]interface{}(l.merged(fields))).Msg(msg)
}

func (l busLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return busLogger{fields: l.merged(fields)}
}

func (l busLogger) merged(fields watermill.LogFields) watermill.LogFields {
	if len(l.fields) == 0 {
		return fields
	}
	return l.fields.Add(fields)
}
