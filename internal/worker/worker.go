// Package worker implements the import pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
	"github.com/jobgrid/feed-importer/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	Topic string
}

// Worker consumes queued feed items and upserts them into the job store.
type Worker struct {
	queue     importer.Queue
	jobStore  importer.JobStore
	runStore  importer.RunStore
	publisher importer.Publisher
	clock     importer.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue importer.Queue,
	jobStore importer.JobStore,
	runStore importer.RunStore,
	publisher importer.Publisher,
	clock importer.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		runStore:  runStore,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		delivery, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, importer.ErrQueueClosed) {
				w.logger.Info("queue closed, worker stopping")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued item",
			zap.String("run_id", delivery.Item.RunID),
			zap.String("external_id", delivery.Item.Item.ExternalID),
			zap.Int("attempt", delivery.Attempt),
		)
		w.processItem(ctx, delivery)
	}
}

func (w *Worker) processItem(ctx context.Context, delivery importer.Delivery) {
	item := delivery.Item

	if err := validate(item); err != nil {
		// malformed items can never succeed, so they do not go back
		// on the queue
		w.recordFailure(ctx, item, err)
		w.finishItem(ctx, item.RunID)
		metrics.ObserveItem(string(importer.OutcomeFailed))
		w.publishOutcome(ctx, item, importer.OutcomeFailed)
		return
	}

	outcome, err := w.upsert(ctx, item)
	if err != nil {
		w.logger.Error("upsert failed",
			zap.String("run_id", item.RunID),
			zap.String("external_id", item.Item.ExternalID),
			zap.Int("attempt", delivery.Attempt),
			zap.Error(err),
		)
		w.recordFailure(ctx, item, err)
		requeued, nackErr := w.queue.Nack(ctx, delivery)
		if nackErr != nil {
			w.logger.Error("nack failed",
				zap.String("run_id", item.RunID),
				zap.String("external_id", item.Item.ExternalID),
				zap.Error(nackErr),
			)
			requeued = false
		}
		if requeued {
			metrics.ObserveQueueRetry()
			return
		}
		w.finishItem(ctx, item.RunID)
		metrics.ObserveItem(string(importer.OutcomeFailed))
		w.publishOutcome(ctx, item, importer.OutcomeFailed)
		return
	}

	switch outcome {
	case importer.OutcomeCreated:
		if err := w.runStore.IncrementCreated(ctx, item.RunID); err != nil {
			w.logger.Error("increment created failed", zap.String("run_id", item.RunID), zap.Error(err))
		}
	case importer.OutcomeUpdated:
		if err := w.runStore.IncrementUpdated(ctx, item.RunID); err != nil {
			w.logger.Error("increment updated failed", zap.String("run_id", item.RunID), zap.Error(err))
		}
	}

	w.finishItem(ctx, item.RunID)
	metrics.ObserveItem(string(outcome))
	w.publishOutcome(ctx, item, outcome)
	w.logger.Debug("item processed",
		zap.String("run_id", item.RunID),
		zap.String("external_id", item.Item.ExternalID),
		zap.String("outcome", string(outcome)),
	)
}

// upsert tries an insert first and falls back to an update when the
// external id already exists. Concurrent workers racing on the same
// external id therefore converge on exactly one created row.
func (w *Worker) upsert(ctx context.Context, item importer.WorkItem) (importer.Outcome, error) {
	now := w.clock.Now()
	record := importer.JobRecord{
		ExternalID:  item.Item.ExternalID,
		Title:       item.Item.Title,
		Company:     item.Item.Company,
		Location:    item.Item.Location,
		Description: item.Item.Description,
		Raw:         item.Item.Raw,
		RunIDs:      []string{item.RunID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := w.jobStore.CreateJob(ctx, record)
	if err == nil {
		return importer.OutcomeCreated, nil
	}
	if !isDuplicate(err) {
		return "", fmt.Errorf("create job: %w", err)
	}

	if err := w.jobStore.UpdateJob(ctx, record, item.RunID); err != nil {
		return "", fmt.Errorf("update job: %w", err)
	}
	return importer.OutcomeUpdated, nil
}

func (w *Worker) recordFailure(ctx context.Context, item importer.WorkItem, cause error) {
	failed := importer.FailedJob{
		Item:   item.Item,
		Reason: cause.Error(),
	}
	if err := w.runStore.RecordFailure(ctx, item.RunID, failed); err != nil {
		w.logger.Error("record failure failed",
			zap.String("run_id", item.RunID),
			zap.String("external_id", item.Item.ExternalID),
			zap.Error(err),
		)
	}
}

func (w *Worker) finishItem(ctx context.Context, runID string) {
	if err := w.runStore.FinishItem(ctx, runID); err != nil {
		w.logger.Error("finish item failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (w *Worker) publishOutcome(ctx context.Context, item importer.WorkItem, outcome importer.Outcome) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":      item.RunID,
		"feed_url":    item.FeedURL,
		"external_id": item.Item.ExternalID,
		"outcome":     string(outcome),
		"timestamp":   w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("publish outcome failed",
			zap.String("run_id", item.RunID),
			zap.String("external_id", item.Item.ExternalID),
			zap.Error(err),
		)
	}
}

func validate(item importer.WorkItem) error {
	if item.Item.ExternalID == "" {
		return &importer.ValidationError{Reason: "job item has no external id"}
	}
	if item.RunID == "" {
		return &importer.ValidationError{Reason: "job item has no run id"}
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, importer.ErrDuplicateJob)
}
