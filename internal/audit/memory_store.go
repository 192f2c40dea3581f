// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveIn ignores the execer and appends to the in-memory slice.
func (s *MemoryStore) SaveIn(ctx context.Context, _ Execer, rec *Record) error {
	return s.Save(ctx, rec)
}

// Save appends a record.
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("audit record cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

// Get retrieves one record by ID within an org.
func (s *MemoryStore) Get(_ context.Context, orgID int64, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].OrgID == orgID && s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("audit record not found: %s", id)
}

// Query retrieves matching records, newest first.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := range s.records {
		if matchesFilter(&s.records[i], filter) {
			out = append(out, s.records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Count returns the number of matching records.
func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.records {
		if matchesFilter(&s.records[i], filter) {
			n++
		}
	}
	return n, nil
}

// DeleteOlderThan removes one org's records older than the cutoff.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, orgID int64, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for i := range s.records {
		if s.records[i].OrgID == orgID && s.records[i].Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s.records[i])
	}
	s.records = kept
	return removed, nil
}

// AnonymizeUser clears user_id on the user's records.
func (s *MemoryStore) AnonymizeUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.records {
		if s.records[i].UserID != nil && *s.records[i].UserID == userID {
			s.records[i].UserID = nil
			n++
		}
	}
	return n, nil
}

func matchesFilter(rec *Record, filter QueryFilter) bool {
	if rec.OrgID != filter.OrgID {
		return false
	}
	if filter.Action != "" && rec.Action != filter.Action {
		return false
	}
	if filter.ObjectType != "" && rec.ObjectType != filter.ObjectType {
		return false
	}
	if filter.ObjectID != "" && rec.ObjectID != filter.ObjectID {
		return false
	}
	if filter.UserID != nil && (rec.UserID == nil || *rec.UserID != *filter.UserID) {
		return false
	}
	if filter.Since != nil && rec.Timestamp.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && rec.Timestamp.After(*filter.Until) {
		return false
	}
	return true
}
