// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package enrich

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/meridianops/meridian/internal/models"
)

// stubEnricher scripts remote subpass behavior for pipeline tests.
type stubEnricher struct {
	fail bool
}

func (s *stubEnricher) ExtractEntities(context.Context, string, string) (models.EntityBag, error) {
	if s.fail {
		return models.EntityBag{}, errors.New("remote down")
	}
	return models.EntityBag{
		Locations:     []string{"Madrid"},
		Organizations: []string{"Transit Workers Union"},
		Topics:        []string{"strike"},
	}, nil
}

func (s *stubEnricher) Summarize(context.Context, string, string) (string, error) {
	if s.fail {
		return "", errors.New("remote down")
	}
	return "Transit workers in Madrid began a strike over pay.", nil
}

func (s *stubEnricher) Sentiment(context.Context, string, string) (models.Sentiment, error) {
	if s.fail {
		return "", errors.New("remote down")
	}
	return models.SentimentNegative, nil
}

func (s *stubEnricher) Categorize(context.Context, string, string) (models.Category, error) {
	if s.fail {
		return "", errors.New("remote down")
	}
	return models.CategoryProtest, nil
}

func TestPipelineFallbackOnly(t *testing.T) {
	p := NewPipeline(nil, nil, 8)

	text := strings.Repeat("Demonstrators gathered in the city center over migration policy. ", 7)
	out := p.Enrich(context.Background(), Input{
		RawTitle:    "Protest in Brussels over migration policy",
		RawText:     text,
		PublishedAt: time.Now().UTC().Add(-time.Hour),
		SourceTrust: 0.5,
	})

	if out.Category != models.CategoryProtest {
		t.Errorf("category = %q, want protest", out.Category)
	}
	if !containsFold(out.Entities.Locations, "Brussels") {
		t.Errorf("locations = %v, want Brussels", out.Entities.Locations)
	}
	if out.Sentiment != models.SentimentNeutral && out.Sentiment != models.SentimentNegative {
		t.Errorf("sentiment = %q, want neutral or negative", out.Sentiment)
	}
	if out.Summary == "" || len(out.Summary) > SummaryMaxChars {
		t.Errorf("summary invalid: %q", out.Summary)
	}
	if out.Confidence >= 0.6 {
		t.Errorf("fallback confidence = %v, want < 0.6", out.Confidence)
	}
	if out.LocationName != "Brussels" {
		t.Errorf("location name = %q, want Brussels", out.LocationName)
	}
	if out.LocationLat == nil || out.LocationLon == nil {
		t.Fatal("gazetteer place should geocode without a remote geocoder")
	}
	if *out.LocationLat < 50 || *out.LocationLat > 51 {
		t.Errorf("lat = %v", *out.LocationLat)
	}
	for _, score := range []float64{out.Confidence, out.Relevance, out.Priority} {
		if score < 0 || score > 1 {
			t.Errorf("score out of range: %v", score)
		}
	}
}

func TestPipelineIdempotent(t *testing.T) {
	p := NewPipeline(nil, nil, 8)
	// Published far enough back that the recency factor is exactly zero on
	// both runs.
	in := Input{
		RawTitle:    "Cholera outbreak spreads in Khartoum",
		RawText:     "Hospitals report rising cases. Aid agencies warn of shortages.",
		PublishedAt: time.Now().UTC().Add(-100 * time.Hour),
		SourceTrust: 0.5,
	}

	a := p.Enrich(context.Background(), in)
	b := p.Enrich(context.Background(), in)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("enrichment not deterministic:\n a = %+v\n b = %+v", a, b)
	}
}

func TestPipelineRemoteUsedWhenHealthy(t *testing.T) {
	p := NewPipeline(&stubEnricher{}, nil, 8)
	out := p.Enrich(context.Background(), Input{
		RawTitle:    "Madrid transit strike enters second day",
		RawText:     strings.Repeat("Commuters faced long delays across the network. ", 13),
		PublishedAt: time.Now().UTC(),
		SourceTrust: 0.5,
	})

	if out.Category != models.CategoryProtest || out.Sentiment != models.SentimentNegative {
		t.Errorf("remote results not used: %+v", out)
	}
	if !containsFold(out.Entities.Organizations, "Transit Workers Union") {
		t.Errorf("organizations = %v", out.Entities.Organizations)
	}
	// No fallback involved, so no confidence penalty: saturated text and a
	// specific category with default trust lands above the degraded band.
	if out.Confidence < 0.6 {
		t.Errorf("healthy remote confidence = %v, want >= 0.6", out.Confidence)
	}
}

func TestPipelineRemoteFailureFallsBack(t *testing.T) {
	p := NewPipeline(&stubEnricher{fail: true}, nil, 8)
	out := p.Enrich(context.Background(), Input{
		RawTitle:    "Protest in Brussels over migration policy",
		RawText:     "Thousands marched through the center.",
		PublishedAt: time.Now().UTC(),
		SourceTrust: 0.5,
	})

	if out.Category != models.CategoryProtest {
		t.Errorf("fallback category = %q", out.Category)
	}
	if out.Summary == "" {
		t.Error("fallback summary should be non-empty")
	}
	if out.Confidence >= 0.6 {
		t.Errorf("degraded confidence = %v, want < 0.6", out.Confidence)
	}
}

func TestPipelineLocationHint(t *testing.T) {
	p := NewPipeline(nil, nil, 8)
	out := p.Enrich(context.Background(), Input{
		RawTitle:     "Power grid failure leaves thousands without electricity",
		RawText:      "Repairs are expected to take days.",
		PublishedAt:  time.Now().UTC(),
		LocationHint: "Nairobi",
		SourceTrust:  0.5,
	})

	if out.LocationName != "Nairobi" {
		t.Errorf("location name = %q, want hint", out.LocationName)
	}
	if out.LocationLat == nil {
		t.Error("hinted gazetteer place should resolve coordinates")
	}
}

func TestPipelineUnknownLocationStaysUnmapped(t *testing.T) {
	p := NewPipeline(nil, nil, 8)
	out := p.Enrich(context.Background(), Input{
		RawTitle:     "Clashes reported near village",
		RawText:      "Details remain scarce.",
		PublishedAt:  time.Now().UTC(),
		LocationHint: "Upper Smallholding",
		SourceTrust:  0.5,
	})

	if out.LocationLat != nil || out.LocationLon != nil {
		t.Error("unknown place must leave coordinates unset")
	}
	if out.LocationName != "Upper Smallholding" {
		t.Errorf("location name = %q", out.LocationName)
	}
}
