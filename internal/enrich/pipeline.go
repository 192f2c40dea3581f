// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package enrich

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/metrics"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// Input is a raw event headed into enrichment.
type Input struct {
	RawTitle    string
	RawText     string
	PublishedAt time.Time

	// LocationHint is a feed-provided location string, used when entity
	// extraction finds no location.
	LocationHint string

	// SourceTrust comes from the Source record, default 0.5.
	SourceTrust float64
}

// Pipeline runs the enrichment subpasses in order and computes the scores.
// It never fails: every subpass error falls through to the deterministic
// fallback and penalizes confidence.
type Pipeline struct {
	remote   Enricher
	fallback *Fallback
	geocoder Geocoder

	// sem caps concurrent remote enrichment across all workers, protecting
	// the LLM budget.
	sem *semaphore.Weighted
}

// NewPipeline builds a pipeline. remote may be nil (LLM disabled);
// geocoder may be nil (geocoding disabled).
func NewPipeline(remote Enricher, geocoder Geocoder, maxConcurrent int64) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Pipeline{
		remote:   remote,
		fallback: NewFallback(),
		geocoder: geocoder,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// Enrich produces the full enrichment for one raw event. Given the same
// input and model version the output is identical across calls.
func (p *Pipeline) Enrich(ctx context.Context, in Input) store.Enrichment {
	start := time.Now()
	defer func() { metrics.EnrichmentDuration.Observe(time.Since(start).Seconds()) }()

	remote := p.remote
	if remote != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			logging.Debug().Err(err).Msg("Enrichment semaphore wait cancelled, running on fallbacks")
			remote = nil
		} else {
			defer p.sem.Release(1)
		}
	}

	var (
		out      store.Enrichment
		degraded bool
	)

	out.Entities, degraded = subpass(degraded, remote, p.fallback, func(e Enricher) (models.EntityBag, error) {
		return e.ExtractEntities(ctx, in.RawTitle, in.RawText)
	}, "entities")

	out.Summary, degraded = subpass(degraded, remote, p.fallback, func(e Enricher) (string, error) {
		return e.Summarize(ctx, in.RawTitle, in.RawText)
	}, "summary")

	out.Sentiment, degraded = subpass(degraded, remote, p.fallback, func(e Enricher) (models.Sentiment, error) {
		return e.Sentiment(ctx, in.RawTitle, in.RawText)
	}, "sentiment")

	out.Category, degraded = subpass(degraded, remote, p.fallback, func(e Enricher) (models.Category, error) {
		return e.Categorize(ctx, in.RawTitle, in.RawText)
	}, "category")

	out.LocationName = pickLocation(out.Entities.Locations, in.LocationHint)
	if out.LocationName != "" {
		if lat, lon, ok := p.resolveCoordinates(ctx, out.LocationName); ok {
			out.LocationLat = &lat
			out.LocationLon = &lon
		}
	}

	textLen := len(in.RawTitle) + len(in.RawText)
	out.Confidence = Confidence(textLen, out.Entities.Total(), out.Category, in.SourceTrust, degraded)
	out.Relevance = Relevance(out.Category, out.Sentiment)
	out.Priority = Priority(out.Relevance, out.Confidence, time.Since(in.PublishedAt), 1)

	return out
}

// subpass runs one enrichment step on the remote enricher when available,
// falling back deterministically on error. The returned flag accumulates
// whether any subpass so far has degraded.
func subpass[T any](degraded bool, remote Enricher, fallback *Fallback, run func(Enricher) (T, error), name string) (T, bool) {
	if remote != nil {
		v, err := run(remote)
		if err == nil {
			metrics.RecordEnrichmentSubpass(name, false)
			return v, degraded
		}
		logging.Debug().Err(err).Str("subpass", name).Msg("Remote enrichment failed, using fallback")
	}
	v, _ := run(fallback)
	metrics.RecordEnrichmentSubpass(name, true)
	return v, true
}

// pickLocation prefers the first extracted location, then the feed hint.
func pickLocation(locations []string, hint string) string {
	if len(locations) > 0 {
		return locations[0]
	}
	return hint
}

// resolveCoordinates tries the gazetteer first, then the configured
// geocoder. Failure leaves the event unmapped but valid.
func (p *Pipeline) resolveCoordinates(ctx context.Context, name string) (float64, float64, bool) {
	if lat, lon, ok := LookupCoordinates(name); ok {
		return lat, lon, true
	}
	if p.geocoder == nil {
		return 0, 0, false
	}
	coords, err := p.geocoder.Geocode(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNoResult) {
			logging.Debug().Err(err).Str("location", name).Msg("Geocoding failed")
		}
		return 0, 0, false
	}
	return coords.Lat, coords.Lon, true
}
