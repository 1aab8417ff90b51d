package importer

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by store implementations.
var (
	// ErrDuplicateJob signals a uniqueness conflict on external ID. It is
	// the expected result for repeated feed entries and drives the
	// create-then-update branch; it is not a failure.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrJobNotFound signals that no record exists for an external ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrRunNotFound signals that no import run exists for a run ID.
	ErrRunNotFound = errors.New("import run not found")
	// ErrNoFeeds signals that a trigger carried no feed URLs and no
	// defaults are configured.
	ErrNoFeeds = errors.New("no feeds to import")
	// ErrQueueClosed signals that the queue has shut down and will not
	// deliver again. Consumers stop their loops on it.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchError wraps a transport or parse failure for a single feed. It
// is recovered locally: the feed is skipped and sibling feeds proceed.
type FetchError struct {
	FeedURL string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s: %v", e.FeedURL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ValidationError marks a work item as permanently unprocessable.
// Validation failures are recorded against the run and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
