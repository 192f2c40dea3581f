// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/dossier"
	"github.com/meridianops/meridian/internal/fusion"
	"github.com/meridianops/meridian/internal/ingest"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/metrics"
	"github.com/meridianops/meridian/internal/store"
)

// IngestJob runs one worker pass for a source type.
type IngestJob struct {
	worker *ingest.Worker
	name   string
}

// NewIngestJob wraps an ingest worker.
func NewIngestJob(worker *ingest.Worker, sourceType string) *IngestJob {
	return &IngestJob{worker: worker, name: "ingest-" + sourceType}
}

func (j *IngestJob) Name() string { return j.name }

func (j *IngestJob) Run(ctx context.Context) error {
	summary, err := j.worker.RunOnce(ctx)
	metrics.RecordIngestPass(j.name, summary.ItemsSeen, summary.EventsNew, summary.SourcesFailed)
	return err
}

// FusionJob runs a scheduled fusion pass. A pass already in flight (manual
// trigger or another replica) is skipped, not failed.
type FusionJob struct {
	engine *fusion.Engine
}

// NewFusionJob wraps the fusion engine.
func NewFusionJob(engine *fusion.Engine) *FusionJob {
	return &FusionJob{engine: engine}
}

func (j *FusionJob) Name() string { return "fusion" }

func (j *FusionJob) Run(ctx context.Context) error {
	summary, err := j.engine.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, store.ErrFusionLocked) {
			logging.Info().Msg("Fusion pass already running, skipping scheduled pass")
			return nil
		}
		return err
	}
	metrics.RecordFusionPass(summary.Duration, summary.ClustersCommitted)
	return nil
}

// RetentionJob sweeps expired events and audit records, then repairs the
// derived state that depended on them: clusters are recomputed and dossier
// statistics marked dirty and refreshed.
type RetentionJob struct {
	store   *store.Store
	audit   *audit.Recorder
	matcher *dossier.Matcher
	fusion  *fusion.Engine
	cfg     *config.RetentionConfig
}

// NewRetentionJob wires the retention sweep.
func NewRetentionJob(st *store.Store, rec *audit.Recorder, matcher *dossier.Matcher, eng *fusion.Engine, cfg *config.RetentionConfig) *RetentionJob {
	return &RetentionJob{store: st, audit: rec, matcher: matcher, fusion: eng, cfg: cfg}
}

func (j *RetentionJob) Name() string { return "retention" }

func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.cfg.DefaultEventDays)

	deleted, err := j.store.SoftDeleteExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("event sweep failed: %w", err)
	}

	purged, err := j.store.PurgeDeleted(ctx, j.cfg.PurgeGrace)
	if err != nil {
		return fmt.Errorf("event purge failed: %w", err)
	}

	if err := j.sweepAudit(ctx); err != nil {
		return err
	}

	if len(deleted) > 0 {
		// Removed events may have shrunk clusters below two members and
		// left dossier counts stale.
		if _, err := j.fusion.RunOnce(ctx); err != nil && !errors.Is(err, store.ErrFusionLocked) {
			logging.Warn().Err(err).Msg("Post-retention fusion pass failed")
		}
		if err := j.store.MarkAllDossiersDirty(ctx); err != nil {
			return fmt.Errorf("failed to mark dossiers dirty: %w", err)
		}
		refreshed, err := j.matcher.RefreshDirty(ctx)
		if err != nil {
			return fmt.Errorf("dossier refresh failed: %w", err)
		}
		logging.Info().Int("events_deleted", len(deleted)).Int64("events_purged", purged).
			Int("dossiers_refreshed", refreshed).
			Msg("Retention sweep complete")
		return nil
	}

	logging.Info().Int64("events_purged", purged).Msg("Retention sweep complete")
	return nil
}

// sweepAudit removes each org's audit rows past its retention window.
// Org-level settings may extend beyond the server default but never below
// the 30-day floor enforced at write time.
func (j *RetentionJob) sweepAudit(ctx context.Context) error {
	orgs, err := j.store.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}
	for _, org := range orgs {
		settings, err := j.store.GetOrgSettings(ctx, org.ID)
		if err != nil {
			logging.Warn().Err(err).Int64("org_id", org.ID).Msg("Failed to read org settings for audit sweep")
			continue
		}
		days := settings.AuditRetentionDays
		if days < 30 {
			// Stored rows predating the write-time floor fall back to the
			// server default.
			days = j.cfg.AuditDays
		}
		removed, err := j.audit.Sweep(ctx, org.ID, days)
		if err != nil {
			logging.Warn().Err(err).Int64("org_id", org.ID).Msg("Audit sweep failed for org")
			continue
		}
		if removed > 0 {
			logging.Info().Int64("org_id", org.ID).Int64("removed", removed).
				Msg("Audit records swept")
		}
	}
	return nil
}

// DossierStatsJob refreshes statistics flagged dirty outside the retention
// path (for example after a crash between sweep and refresh).
type DossierStatsJob struct {
	matcher *dossier.Matcher
}

// NewDossierStatsJob wraps the matcher's dirty refresh.
func NewDossierStatsJob(matcher *dossier.Matcher) *DossierStatsJob {
	return &DossierStatsJob{matcher: matcher}
}

func (j *DossierStatsJob) Name() string { return "dossier-stats" }

func (j *DossierStatsJob) Run(ctx context.Context) error {
	refreshed, err := j.matcher.RefreshDirty(ctx)
	if err != nil {
		return err
	}
	if refreshed > 0 {
		logging.Info().Int("dossiers_refreshed", refreshed).Msg("Dirty dossier statistics refreshed")
	}
	return nil
}
