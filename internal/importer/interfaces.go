package importer

import (
	"context"
	"time"
)

// JobStore persists deduplicated job records keyed by external ID.
type JobStore interface {
	// CreateJob inserts a new record, returning ErrDuplicateJob when a
	// record with the same external ID already exists.
	CreateJob(ctx context.Context, rec JobRecord) error
	// UpdateJob overwrites the descriptive fields of an existing record
	// and adds runID to its run-id set. Adding an already-present runID
	// is a no-op, so redelivery never duplicates membership.
	UpdateJob(ctx context.Context, rec JobRecord, runID string) error
	// GetJob loads a record or returns ErrJobNotFound.
	GetJob(ctx context.Context, externalID string) (JobRecord, error)
}

// RunStore tracks import runs and their counters. Every increment must
// be atomic relative to concurrent callers.
type RunStore interface {
	CreateRun(ctx context.Context, runID, fileName string, createdAt time.Time) error
	// StartRun moves a pending run to running, or straight to completed
	// when no work items are outstanding.
	StartRun(ctx context.Context, runID string) error
	IncrementFetched(ctx context.Context, runID string, n int) error
	// IncrementCreated bumps newJobs and totalImported.
	IncrementCreated(ctx context.Context, runID string) error
	// IncrementUpdated bumps updatedJobs and totalImported.
	IncrementUpdated(ctx context.Context, runID string) error
	// RecordFailure appends the failure detail and bumps failedJobsCount.
	RecordFailure(ctx context.Context, runID string, failure FailedJob) error
	// AddPending raises the count of enqueued-but-unprocessed items.
	AddPending(ctx context.Context, runID string, n int) error
	// FinishItem lowers the pending count after a terminal outcome and
	// completes the run once it is running with nothing outstanding.
	FinishItem(ctx context.Context, runID string) error
	GetRun(ctx context.Context, runID string) (ImportRun, error)
	ListRuns(ctx context.Context, page, pageSize int) (RunPage, error)
}

// Queue distributes work items to consumers with at-least-once
// delivery semantics.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem, opts EnqueueOptions) error
	Dequeue(ctx context.Context) (Delivery, error)
	// Nack signals failed processing. The queue schedules redelivery per
	// the delivery's backoff policy and reports requeued=true, or drops
	// the item and reports requeued=false once attempts are exhausted.
	Nack(ctx context.Context, d Delivery) (requeued bool, err error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes outcome events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
