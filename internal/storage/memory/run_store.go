package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// RunStore tracks import runs in memory. All counter mutations happen
// under one mutex, so increments never lose updates under concurrency.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*importer.ImportRun
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*importer.ImportRun)}
}

// CreateRun registers a new pending run.
func (s *RunStore) CreateRun(_ context.Context, runID, fileName string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return errors.New("run already exists")
	}
	s.runs[runID] = &importer.ImportRun{
		RunID:     runID,
		FileName:  fileName,
		Status:    importer.RunStatusPending,
		CreatedAt: createdAt,
	}
	return nil
}

// StartRun moves a pending run to running, or completes it immediately
// when nothing was enqueued.
func (s *RunStore) StartRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return importer.ErrRunNotFound
	}
	if run.Status != importer.RunStatusPending {
		return nil
	}
	if run.PendingItems <= 0 {
		run.Status = importer.RunStatusCompleted
	} else {
		run.Status = importer.RunStatusRunning
	}
	return nil
}

// IncrementFetched adds n to the run's fetched counter.
func (s *RunStore) IncrementFetched(_ context.Context, runID string, n int) error {
	return s.mutate(runID, func(run *importer.ImportRun) {
		run.TotalFetched += n
	})
}

// IncrementCreated bumps newJobs and totalImported.
func (s *RunStore) IncrementCreated(_ context.Context, runID string) error {
	return s.mutate(runID, func(run *importer.ImportRun) {
		run.NewJobs++
		run.TotalImported++
	})
}

// IncrementUpdated bumps updatedJobs and totalImported.
func (s *RunStore) IncrementUpdated(_ context.Context, runID string) error {
	return s.mutate(runID, func(run *importer.ImportRun) {
		run.UpdatedJobs++
		run.TotalImported++
	})
}

// RecordFailure appends the failure and bumps failedJobsCount.
func (s *RunStore) RecordFailure(_ context.Context, runID string, failure importer.FailedJob) error {
	return s.mutate(runID, func(run *importer.ImportRun) {
		run.FailedJobsCount++
		run.FailedJobs = append(run.FailedJobs, failure)
	})
}

// AddPending raises the outstanding work item count.
func (s *RunStore) AddPending(_ context.Context, runID string, n int) error {
	return s.mutate(runID, func(run *importer.ImportRun) {
		run.PendingItems += n
	})
}

// FinishItem lowers the outstanding count and completes a running run
// that has drained.
func (s *RunStore) FinishItem(_ context.Context, runID string) error {
	return s.mutate(runID, func(run *importer.ImportRun) {
		run.PendingItems--
		if run.Status == importer.RunStatusRunning && run.PendingItems <= 0 {
			run.Status = importer.RunStatusCompleted
		}
	})
}

// GetRun fetches a run snapshot by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (importer.ImportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return importer.ImportRun{}, importer.ErrRunNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns one page of runs sorted by creation time descending.
func (s *RunStore) ListRuns(_ context.Context, page, pageSize int) (importer.RunPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	// Clone while holding the lock; the runs keep mutating underneath.
	s.mu.RLock()
	all := make([]importer.ImportRun, 0, len(s.runs))
	for _, run := range s.runs {
		all = append(all, cloneRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].RunID > all[j].RunID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	result := importer.RunPage{Page: page, PageSize: pageSize, Total: len(all)}
	start := (page - 1) * pageSize
	if start >= len(all) {
		result.Items = []importer.ImportRun{}
		return result, nil
	}
	end := min(start+pageSize, len(all))
	result.Items = all[start:end]
	return result, nil
}

func (s *RunStore) mutate(runID string, fn func(*importer.ImportRun)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return importer.ErrRunNotFound
	}
	fn(run)
	return nil
}

func cloneRun(run *importer.ImportRun) importer.ImportRun {
	cp := *run
	cp.FailedJobs = slices.Clone(run.FailedJobs)
	return cp
}
