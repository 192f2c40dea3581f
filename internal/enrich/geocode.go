// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/meridianops/meridian/internal/config"
)

// ErrNoResult means the geocoder found nothing for the query. The event
// stays valid without coordinates.
var ErrNoResult = errors.New("geocoder: no result")

// Coordinates is a resolved point.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Geocoder resolves a location name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (Coordinates, error)
}

// NominatimGeocoder resolves names against a Nominatim-compatible endpoint.
// Requests are rate limited; Nominatim's public instance allows one per
// second.
type NominatimGeocoder struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Geocoder = (*NominatimGeocoder)(nil)

// NewNominatimGeocoder builds a geocoder from the geocoder config section.
func NewNominatimGeocoder(cfg *config.GeocoderConfig) *NominatimGeocoder {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NominatimGeocoder{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a name, waiting on the rate limiter first.
func (g *NominatimGeocoder) Geocode(ctx context.Context, name string) (Coordinates, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Coordinates{}, err
	}

	endpoint := g.baseURL + "/search?format=json&limit=1&q=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Coordinates{}, fmt.Errorf("failed to build geocode request: %w", err)
	}
	// Nominatim's usage policy requires an identifying agent.
	req.Header.Set("User-Agent", "meridian/1.0 (+https://github.com/meridianops/meridian)")

	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Coordinates{}, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return Coordinates{}, ErrNoResult
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}

// GazetteerGeocoder resolves only places in the built-in gazetteer. It
// backs tests and deployments with geocoding disabled.
type GazetteerGeocoder struct{}

var _ Geocoder = (*GazetteerGeocoder)(nil)

// Geocode resolves a name against the gazetteer.
func (GazetteerGeocoder) Geocode(_ context.Context, name string) (Coordinates, error) {
	lat, lon, ok := LookupCoordinates(name)
	if !ok {
		return Coordinates{}, ErrNoResult
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}
