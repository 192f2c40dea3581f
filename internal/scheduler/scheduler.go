// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package scheduler runs Meridian's periodic jobs (ingest passes, fusion,
// retention, dossier statistics) as supervised ticker services.
package scheduler

import (
	"context"
	"time"

	"github.com/meridianops/meridian/internal/logging"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Ticker drives a Job on a fixed interval. Runs are strictly sequential:
// a pass that outlasts its interval delays the next one rather than
// overlapping it. Implements suture.Service.
type Ticker struct {
	job        Job
	interval   time.Duration
	runAtStart bool
}

// NewTicker wraps a job. runAtStart fires one pass immediately on Serve
// instead of waiting a full interval.
func NewTicker(job Job, interval time.Duration, runAtStart bool) *Ticker {
	return &Ticker{job: job, interval: interval, runAtStart: runAtStart}
}

// Serve runs the job loop until the context is canceled. Job failures are
// logged and the loop continues; only cancellation stops the service.
func (t *Ticker) Serve(ctx context.Context) error {
	if t.runAtStart {
		t.runOnce(ctx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

func (t *Ticker) runOnce(ctx context.Context) {
	start := time.Now()
	if err := t.job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Error().Err(err).Str("job", t.job.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Scheduled job failed")
		return
	}
	logging.Debug().Str("job", t.job.Name()).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled job complete")
}

// String implements fmt.Stringer for supervisor logs.
func (t *Ticker) String() string {
	return "ticker-" + t.job.Name()
}
