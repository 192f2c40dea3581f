// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package dossier

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/meridianops/meridian/internal/bus"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// coordMatchKm is the radius within which a mapped event matches a location
// dossier that carries coordinates.
const coordMatchKm = 25.0

// Matcher applies enriched events to every organization's dossiers and
// recomputes the derived statistics block.
type Matcher struct {
	store *store.Store
}

// NewMatcher builds a matcher over the given store.
func NewMatcher(st *store.Store) *Matcher {
	return &Matcher{store: st}
}

// Matches reports whether the event concerns the dossier's subject.
func Matches(d *models.Dossier, ev *models.Event) bool {
	names := dossierNames(d)

	switch d.DossierType {
	case models.DossierTypeLocation:
		if matchesAxis(names, ev.Entities.Locations) {
			return true
		}
		if n := strings.ToLower(strings.TrimSpace(ev.LocationName)); n != "" {
			if _, ok := names[n]; ok {
				return true
			}
		}
		return withinCoordRadius(d, ev)
	case models.DossierTypeOrganization:
		return matchesAxis(names, ev.Entities.Organizations)
	case models.DossierTypeGroup:
		return matchesAxis(names, ev.Entities.Groups)
	case models.DossierTypeTopic:
		return matchesAxis(names, ev.Entities.Topics)
	case models.DossierTypePerson:
		// Non-officials never match, regardless of what the feed says.
		if !officialDossier(d) {
			return false
		}
		return matchesAxis(names, ev.Entities.Keywords)
	default:
		return false
	}
}

func dossierNames(d *models.Dossier) map[string]struct{} {
	names := make(map[string]struct{}, len(d.Aliases)+1)
	if n := strings.ToLower(strings.TrimSpace(d.Name)); n != "" {
		names[n] = struct{}{}
	}
	for _, alias := range d.Aliases {
		if n := strings.ToLower(strings.TrimSpace(alias)); n != "" {
			names[n] = struct{}{}
		}
	}
	return names
}

func matchesAxis(names map[string]struct{}, axis []string) bool {
	for _, v := range axis {
		if _, ok := names[strings.ToLower(strings.TrimSpace(v))]; ok {
			return true
		}
	}
	return false
}

func officialDossier(d *models.Dossier) bool {
	if IsPublicOfficial(d.Name) {
		return true
	}
	for _, alias := range d.Aliases {
		if IsPublicOfficial(alias) {
			return true
		}
	}
	return false
}

func withinCoordRadius(d *models.Dossier, ev *models.Event) bool {
	if d.Lat == nil || d.Lon == nil || !ev.HasCoordinates() {
		return false
	}
	return distanceKm(*d.Lat, *d.Lon, *ev.LocationLat, *ev.LocationLon) <= coordMatchKm
}

func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// ApplyEvent updates statistics for every dossier, in any org, that the
// event matches. Returns the matched dossiers.
func (m *Matcher) ApplyEvent(ctx context.Context, ev *models.Event) ([]models.Dossier, error) {
	dossiers, err := m.store.ListAllDossiers(ctx)
	if err != nil {
		return nil, err
	}

	var matched []models.Dossier
	for i := range dossiers {
		d := &dossiers[i]
		if !Matches(d, ev) {
			continue
		}
		if err := m.Recompute(ctx, d); err != nil {
			return matched, err
		}
		matched = append(matched, *d)
	}
	return matched, nil
}

// Run consumes the event stream and applies each enriched event as it
// arrives. Blocks until the context is cancelled.
func (m *Matcher) Run(ctx context.Context, events *bus.Bus) error {
	msgs, err := events.SubscribeEvents(ctx)
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
				logging.Error().Err(err).Msg("Failed to decode event for dossier matching")
				msg.Ack()
				continue
			}
			if _, err := m.ApplyEvent(ctx, ev); err != nil {
				logging.Error().Err(err).Str("event_id", ev.EventID).
					Msg("Failed to apply event to dossiers")
			}
			msg.Ack()
		}
	}
}

// RefreshDirty recomputes statistics for dossiers flagged by the retention
// sweep. Returns the number of dossiers refreshed.
func (m *Matcher) RefreshDirty(ctx context.Context) (int, error) {
	dirty, err := m.store.ListDirtyDossiers(ctx)
	if err != nil {
		return 0, err
	}
	for i := range dirty {
		if err := m.Recompute(ctx, &dirty[i]); err != nil {
			return i, err
		}
	}
	if len(dirty) > 0 {
		logging.Debug().Int("dossiers", len(dirty)).Msg("Refreshed dirty dossier statistics")
	}
	return len(dirty), nil
}

// Recompute rebuilds the dossier's statistics from scratch over non-deleted
// enriched events and persists them, clearing the dirty flag.
func (m *Matcher) Recompute(ctx context.Context, d *models.Dossier) error {
	events, err := m.store.ListEventsSince(ctx, time.Time{})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cutoff7d := now.Add(-7 * 24 * time.Hour)
	cutoff30d := now.Add(-30 * 24 * time.Hour)

	d.EventCount = 0
	d.LastEventAt = nil
	d.Count7d = 0
	d.Count30d = 0
	d.CategoryBreakdown = make(map[string]int)
	d.SentimentBreakdown = make(map[string]int)

	for i := range events {
		ev := &events[i]
		if !Matches(d, ev) {
			continue
		}
		d.EventCount++
		if d.LastEventAt == nil || ev.Timestamp.After(*d.LastEventAt) {
			ts := ev.Timestamp
			d.LastEventAt = &ts
		}
		if ev.Timestamp.After(cutoff30d) {
			d.Count30d++
			d.CategoryBreakdown[string(ev.Category)]++
			d.SentimentBreakdown[string(ev.Sentiment)]++
		}
		if ev.Timestamp.After(cutoff7d) {
			d.Count7d++
		}
	}

	return m.store.UpdateDossierStats(ctx, d)
}
