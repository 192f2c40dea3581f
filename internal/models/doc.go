// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package models defines Meridian's domain types.
//
// The model distinguishes GLOBAL rows from ORG-SCOPED rows. Events, clusters,
// and sources are global: every organization sees the same event stream.
// Dossiers, watchlists, feedback, audit records, and settings carry an org_id
// and are invisible outside the owning organization.
package models
