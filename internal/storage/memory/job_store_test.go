package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobgrid/feed-importer/internal/importer"
)

func sampleRecord(externalID, runID string) importer.JobRecord {
	return importer.JobRecord{
		ExternalID:  externalID,
		Title:       "Backend Engineer",
		Company:     "Acme",
		Location:    "Remote",
		Description: "Build services",
		RunIDs:      []string{runID},
		CreatedAt:   time.Unix(1700000000, 0).UTC(),
	}
}

func TestJobStoreCreateThenDuplicate(t *testing.T) {
	t.Parallel()

	s := NewJobStore()
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, sampleRecord("e-1", "run-1")))
	err := s.CreateJob(ctx, sampleRecord("e-1", "run-2"))
	require.ErrorIs(t, err, importer.ErrDuplicateJob)
	require.Equal(t, 1, s.Count())
}

func TestJobStoreUpdateUnionsRunIDs(t *testing.T) {
	t.Parallel()

	s := NewJobStore()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, sampleRecord("e-1", "run-1")))

	updated := sampleRecord("e-1", "run-2")
	updated.Title = "Senior Backend Engineer"
	require.NoError(t, s.UpdateJob(ctx, updated, "run-2"))
	require.NoError(t, s.UpdateJob(ctx, updated, "run-2"), "repeat update is a no-op for membership")

	rec, err := s.GetJob(ctx, "e-1")
	require.NoError(t, err)
	require.Equal(t, "Senior Backend Engineer", rec.Title)
	require.ElementsMatch(t, []string{"run-1", "run-2"}, rec.RunIDs)
}

func TestJobStoreUpdateMissingRecord(t *testing.T) {
	t.Parallel()

	s := NewJobStore()
	err := s.UpdateJob(context.Background(), sampleRecord("absent", "run-1"), "run-1")
	require.ErrorIs(t, err, importer.ErrJobNotFound)
}

func TestJobStoreConcurrentCreateSingleWinner(t *testing.T) {
	t.Parallel()

	s := NewJobStore()
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	created := make(chan struct{}, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.CreateJob(ctx, sampleRecord("contested", "run-1")); err == nil {
				created <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(created)

	wins := 0
	for range created {
		wins++
	}
	require.Equal(t, 1, wins, "exactly one concurrent create may succeed")
	require.Equal(t, 1, s.Count())
}
