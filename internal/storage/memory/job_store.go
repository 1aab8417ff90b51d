// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// JobStore keeps deduplicated job records in a mutex-guarded map. The
// map key doubles as the unique constraint on external ID.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]importer.JobRecord
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]importer.JobRecord)}
}

// CreateJob stores a new record or reports a uniqueness conflict.
func (s *JobStore) CreateJob(_ context.Context, rec importer.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[rec.ExternalID]; exists {
		return importer.ErrDuplicateJob
	}
	rec.RunIDs = slices.Clone(rec.RunIDs)
	s.jobs[rec.ExternalID] = rec
	return nil
}

// UpdateJob overwrites descriptive fields and unions runID into the
// record's run-id set.
func (s *JobStore) UpdateJob(_ context.Context, rec importer.JobRecord, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[rec.ExternalID]
	if !ok {
		return importer.ErrJobNotFound
	}
	existing.Title = rec.Title
	existing.Company = rec.Company
	existing.Location = rec.Location
	existing.Description = rec.Description
	existing.Raw = rec.Raw
	existing.UpdatedAt = rec.UpdatedAt
	if !slices.Contains(existing.RunIDs, runID) {
		existing.RunIDs = append(existing.RunIDs, runID)
	}
	s.jobs[rec.ExternalID] = existing
	return nil
}

// GetJob fetches a record by external ID.
func (s *JobStore) GetJob(_ context.Context, externalID string) (importer.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[externalID]
	if !ok {
		return importer.JobRecord{}, importer.ErrJobNotFound
	}
	rec.RunIDs = slices.Clone(rec.RunIDs)
	return rec, nil
}

// Count returns the number of stored records.
func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
