// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/meridianops/meridian/internal/bus"
	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/enrich"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/metrics"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// clockSkewTolerance bounds how far in the future a feed may claim an item
// was published before we clamp it to ingest time.
const clockSkewTolerance = 5 * time.Minute

// Summary reports one worker pass.
type Summary struct {
	SourcesOK     int
	SourcesFailed int
	ItemsSeen     int
	EventsNew     int
}

// Worker ingests all active sources of one type. Sources fetch
// concurrently up to a bound; items within a source are handled
// sequentially so feed order is preserved.
type Worker struct {
	store      *store.Store
	pipeline   *enrich.Pipeline
	events     *bus.Bus
	cfg        *config.IngestConfig
	sourceType models.SourceType
	fetcher    SourceFetcher

	mu       sync.Mutex
	breakers map[int64]*gobreaker.CircuitBreaker[[]RawItem]
}

// NewWorker builds a worker for one source type.
func NewWorker(st *store.Store, pipeline *enrich.Pipeline, events *bus.Bus, cfg *config.IngestConfig, sourceType models.SourceType, fetcher SourceFetcher) *Worker {
	return &Worker{
		store:      st,
		pipeline:   pipeline,
		events:     events,
		cfg:        cfg,
		sourceType: sourceType,
		fetcher:    fetcher,
		breakers:   make(map[int64]*gobreaker.CircuitBreaker[[]RawItem]),
	}
}

// RunOnce processes every active source of the worker's type. Individual
// source failures are recorded on the source and do not fail the pass.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	sources, err := w.store.ListSources(ctx, w.sourceType, true)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list %s sources: %w", w.sourceType, err)
	}

	maxConcurrent := int64(w.cfg.MaxConcurrentSources)
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	sem := semaphore.NewWeighted(maxConcurrent)

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	for i := range sources {
		src := sources[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			seen, created, err := w.ingestSource(ctx, &src)

			mu.Lock()
			defer mu.Unlock()
			summary.ItemsSeen += seen
			summary.EventsNew += created
			if err != nil {
				summary.SourcesFailed++
			} else {
				summary.SourcesOK++
			}
		}()
	}
	wg.Wait()

	logging.Info().Str("source_type", string(w.sourceType)).
		Int("sources_ok", summary.SourcesOK).Int("sources_failed", summary.SourcesFailed).
		Int("items_seen", summary.ItemsSeen).Int("events_new", summary.EventsNew).
		Msg("Ingest pass complete")
	return summary, ctx.Err()
}

// ingestSource fetches one source through its breaker and persists its
// items in feed order.
func (w *Worker) ingestSource(ctx context.Context, src *models.Source) (seen, created int, err error) {
	var since time.Time
	if src.LastFetchedAt != nil {
		// Re-fetch a small overlap; dedup absorbs the repeats.
		since = src.LastFetchedAt.Add(-time.Hour)
	}

	items, err := w.breaker(src).Execute(func() ([]RawItem, error) {
		return w.fetcher.Fetch(ctx, src, since)
	})
	if err != nil {
		logging.Warn().Err(err).Str("source", src.URL).Msg("Source fetch failed")
		if recordErr := w.store.RecordFetchResult(ctx, src.ID, err.Error()); recordErr != nil {
			logging.Error().Err(recordErr).Int64("source_id", src.ID).Msg("Failed to record fetch error")
		}
		return 0, 0, err
	}

	for i := range items {
		isNew, itemErr := w.processItem(ctx, src, &items[i])
		if itemErr != nil {
			// Already dead-lettered; keep going with the rest of the feed.
			continue
		}
		seen++
		if isNew {
			created++
		}
	}

	if recordErr := w.store.RecordFetchResult(ctx, src.ID, ""); recordErr != nil {
		logging.Error().Err(recordErr).Int64("source_id", src.ID).Msg("Failed to record fetch result")
	}
	return seen, created, nil
}

// processItem normalizes, upserts, enriches, and announces one feed item.
func (w *Worker) processItem(ctx context.Context, src *models.Source, item *RawItem) (bool, error) {
	raw := w.normalize(src, item)

	var (
		eventID string
		isNew   bool
	)
	err := w.withRetry(ctx, func() error {
		var upsertErr error
		eventID, isNew, upsertErr = w.store.UpsertEvent(ctx, raw)
		return upsertErr
	})
	if err != nil {
		w.deadLetter(ctx, src, item, err)
		return false, err
	}
	if !isNew {
		return false, nil
	}

	enrichment := w.pipeline.Enrich(ctx, enrich.Input{
		RawTitle:     raw.RawTitle,
		RawText:      raw.RawText,
		PublishedAt:  raw.PublishedAt,
		LocationHint: raw.LocationHint,
		SourceTrust:  src.TrustScore,
	})

	err = w.withRetry(ctx, func() error {
		_, saveErr := w.store.SaveEnrichment(ctx, eventID, enrichment)
		return saveErr
	})
	if err != nil {
		w.deadLetter(ctx, src, item, err)
		return false, err
	}

	// Announce only after enrichment is durable.
	if w.events != nil {
		event, getErr := w.store.GetEvent(ctx, eventID)
		if getErr != nil {
			logging.Error().Err(getErr).Str("event_id", eventID).Msg("Failed to load event for publish")
			return true, nil
		}
		if pubErr := w.events.PublishEventCreated(event); pubErr != nil {
			logging.Error().Err(pubErr).Str("event_id", eventID).Msg("Failed to publish event created")
		}
	}
	return true, nil
}

// normalize maps a feed item onto the store payload, clamping future
// publish times to ingest time.
func (w *Worker) normalize(src *models.Source, item *RawItem) store.RawEvent {
	now := time.Now().UTC()
	published := item.PublishedAt
	var meta map[string]interface{}
	if published.After(now.Add(clockSkewTolerance)) {
		meta = map[string]interface{}{
			"published_at_original": published.Format(time.RFC3339),
		}
		published = now
	}

	sourceURL := item.Link
	if sourceURL == "" {
		sourceURL = src.URL
	}

	return store.RawEvent{
		SourceID:     src.ID,
		SourceURL:    sourceURL,
		PublishedAt:  published,
		RawTitle:     item.Title,
		RawText:      item.Description,
		LocationHint: item.LocationHint,
		Timestamp:    published,
		RawMetadata:  meta,
	}
}

// withRetry runs fn with exponential backoff per the ingest config.
func (w *Worker) withRetry(ctx context.Context, fn func() error) error {
	attempts := w.cfg.StoreRetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := w.cfg.StoreRetryBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// deadLetter records an item that exhausted its store-write retries.
func (w *Worker) deadLetter(ctx context.Context, src *models.Source, item *RawItem, cause error) {
	logging.Error().Err(cause).Str("source", src.URL).Str("title", item.Title).
		Msg("Item exhausted store retries, dead-lettering")
	dl := models.DeadLetter{
		SourceURL:   item.Link,
		Title:       item.Title,
		PublishedAt: item.PublishedAt,
		Error:       cause.Error(),
		FailedAt:    time.Now().UTC(),
	}
	if err := w.store.AppendDeadLetter(ctx, src.ID, dl); err != nil {
		logging.Error().Err(err).Int64("source_id", src.ID).Msg("Failed to append dead letter")
	}
	metrics.IngestDeadLetters.Inc()
}

// breaker returns the source's circuit breaker, creating it on first use.
// Five consecutive failures open the breaker; a half-open probe is allowed
// after the configured interval.
func (w *Worker) breaker(src *models.Source) *gobreaker.CircuitBreaker[[]RawItem] {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cb, ok := w.breakers[src.ID]; ok {
		return cb
	}

	threshold := w.cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	probe := w.cfg.BreakerProbeInterval
	if probe <= 0 {
		probe = 10 * time.Minute
	}

	cb := gobreaker.NewCircuitBreaker[[]RawItem](gobreaker.Settings{
		Name:        fmt.Sprintf("source-%d", src.ID),
		MaxRequests: 1,
		Timeout:     probe,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Source circuit breaker state change")
		},
	})
	w.breakers[src.ID] = cb
	return cb
}
