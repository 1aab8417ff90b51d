// Package importer defines core types shared across subsystems.
package importer

import (
	"encoding/json"
	"math"
	"time"
)

// RunStatus represents the lifecycle state of an import run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
)

// Outcome is the terminal result of processing a single work item.
type Outcome string

// Work item outcomes reported by workers.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "failed"
)

// NormalizedItem is the uniform shape every feed entry is reduced to
// before it enters the queue. ExternalID is always non-empty and is
// deterministic for identical source content.
type NormalizedItem struct {
	ExternalID  string          `json:"externalId"`
	Title       string          `json:"title"`
	Company     string          `json:"company"`
	Location    string          `json:"location"`
	Description string          `json:"description"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// WorkItem is a single normalized entry queued for dedup processing.
// Immutable once enqueued.
type WorkItem struct {
	RunID   string         `json:"runId"`
	FeedURL string         `json:"feedUrl"`
	Item    NormalizedItem `json:"item"`
}

// FailedJob records one failed processing attempt against a run.
type FailedJob struct {
	Item   NormalizedItem `json:"item"`
	Reason string         `json:"reason"`
}

// ImportRun accumulates per-run statistics. Counters are mutated only
// through atomic RunStore increments; TotalImported == NewJobs +
// UpdatedJobs and FailedJobsCount == len(FailedJobs) hold eventually,
// not transactionally.
type ImportRun struct {
	RunID           string      `json:"runId"`
	FileName        string      `json:"fileName"`
	Status          RunStatus   `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	TotalFetched    int         `json:"totalFetched"`
	TotalImported   int         `json:"totalImported"`
	NewJobs         int         `json:"newJobs"`
	UpdatedJobs     int         `json:"updatedJobs"`
	FailedJobsCount int         `json:"failedJobsCount"`
	FailedJobs      []FailedJob `json:"failedJobs,omitempty"`
	PendingItems    int         `json:"pendingItems"`
}

// JobRecord is the deduplicated posting persisted in the job store,
// keyed uniquely by ExternalID. Descriptive fields hold the values from
// the most recent ingestion; RunIDs is the set of runs that touched it.
type JobRecord struct {
	ExternalID  string          `json:"externalId"`
	Title       string          `json:"title"`
	Company     string          `json:"company"`
	Location    string          `json:"location"`
	Description string          `json:"description"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	RunIDs      []string        `json:"runIds"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// FeedResult summarizes one feed within a trigger call.
type FeedResult struct {
	FeedURL string `json:"feedUrl"`
	Fetched int    `json:"fetched"`
	Error   string `json:"error,omitempty"`
}

// TriggerResult is returned synchronously from a pipeline trigger once
// all feeds are fetched and enqueued; processing continues async.
type TriggerResult struct {
	RunID   string       `json:"runId"`
	Results []FeedResult `json:"results"`
}

// RunPage is one page of run history, newest first.
type RunPage struct {
	Items    []ImportRun `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Total    int         `json:"total"`
}

// BackoffPolicy describes the exponential delay curve applied between
// redelivery attempts.
type BackoffPolicy struct {
	InitialDelay time.Duration `json:"delayMs"`
	MaxDelay     time.Duration `json:"maxDelayMs"`
}

// Delay returns the wait before redelivering an item that has already
// been attempted `attempt` times (attempt >= 1).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// EnqueueOptions carries the retry policy attached to a work item when
// it is pushed onto the queue.
type EnqueueOptions struct {
	Attempts int           `json:"attempts"`
	Backoff  BackoffPolicy `json:"backoff"`
}

// Delivery wraps a work item handed to a consumer, along with the
// attempt counter the queue maintains across redeliveries.
type Delivery struct {
	Item    WorkItem       `json:"item"`
	Attempt int            `json:"attempt"`
	Options EnqueueOptions `json:"options"`
}
