// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package realtime

import (
	"context"
	"fmt"

	"github.com/meridianops/meridian/internal/bus"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// AlertEvaluator turns newly persisted events into org-scoped alerts when
// they meet an organization's alerting thresholds.
type AlertEvaluator struct {
	store  *store.Store
	events *bus.Bus
}

// NewAlertEvaluator builds an evaluator.
func NewAlertEvaluator(st *store.Store, events *bus.Bus) *AlertEvaluator {
	return &AlertEvaluator{store: st, events: events}
}

// Run consumes the event stream and publishes alerts until cancelled.
func (a *AlertEvaluator) Run(ctx context.Context) error {
	msgs, err := a.events.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			ev, err := bus.DecodeEvent(msg)
			if err != nil {
				logging.Error().Err(err).Msg("Failed to decode event for alert evaluation")
				msg.Ack()
				continue
			}
			if err := a.Evaluate(ctx, ev); err != nil {
				logging.Error().Err(err).Str("event_id", ev.EventID).
					Msg("Alert evaluation failed")
			}
			msg.Ack()
		}
	}
}

// Evaluate checks the event against every organization's alert settings and
// publishes one alert per triggered org.
func (a *AlertEvaluator) Evaluate(ctx context.Context, ev *models.Event) error {
	orgs, err := a.store.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		settings, err := a.store.GetOrgSettings(ctx, org.ID)
		if err != nil {
			logging.Error().Err(err).Int64("org_id", org.ID).
				Msg("Failed to load settings for alert evaluation")
			continue
		}
		reason, triggered := evaluateAgainst(settings, ev)
		if !triggered {
			continue
		}
		if err := a.events.PublishAlertTriggered(&bus.Alert{
			OrgID:  org.ID,
			Event:  ev,
			Reason: reason,
		}); err != nil {
			return err
		}
		logging.Debug().Int64("org_id", org.ID).Str("event_id", ev.EventID).
			Str("reason", reason).Msg("Alert triggered")
	}
	return nil
}

// evaluateAgainst applies one org's thresholds. High priority alone
// triggers; an alert category triggers when the sentiment list is empty or
// contains the event's sentiment.
func evaluateAgainst(settings *models.OrgSettings, ev *models.Event) (string, bool) {
	if settings.HighPriorityThreshold > 0 && ev.PriorityScore >= settings.HighPriorityThreshold {
		return fmt.Sprintf("priority %.2f at or above threshold %.2f",
			ev.PriorityScore, settings.HighPriorityThreshold), true
	}
	if containsCategory(settings.AlertCategories, ev.Category) {
		if len(settings.AlertSentimentTypes) == 0 || containsSentiment(settings.AlertSentimentTypes, ev.Sentiment) {
			return fmt.Sprintf("category %s on alert list", ev.Category), true
		}
	}
	return "", false
}

func containsSentiment(sentiments []models.Sentiment, s models.Sentiment) bool {
	for _, v := range sentiments {
		if v == s {
			return true
		}
	}
	return false
}
