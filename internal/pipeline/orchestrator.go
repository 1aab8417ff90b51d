// Package pipeline coordinates import runs across feeds, queue, and stores.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
	"github.com/jobgrid/feed-importer/internal/metrics"
)

// Fetcher retrieves a feed and returns its normalized items plus the raw document.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]importer.NormalizedItem, []byte, error)
}

// Config controls run orchestration.
type Config struct {
	DefaultFeeds []string
	Attempts     int
	Backoff      importer.BackoffPolicy
	ArchiveFeeds bool
}

// Orchestrator triggers import runs and feeds the work queue.
type Orchestrator struct {
	fetcher   Fetcher
	queue     importer.Queue
	runStore  importer.RunStore
	blobStore importer.BlobStore
	ids       importer.IDGenerator
	clock     importer.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	fetcher Fetcher,
	queue importer.Queue,
	runStore importer.RunStore,
	blobStore importer.BlobStore,
	ids importer.IDGenerator,
	clock importer.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		queue:     queue,
		runStore:  runStore,
		blobStore: blobStore,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Trigger runs an import over the given feeds, falling back to the
// configured defaults when none are supplied. The run is marked running
// only after every feed has been fetched and enqueued, so workers draining
// early cannot complete the run prematurely.
func (o *Orchestrator) Trigger(ctx context.Context, feedURLs []string) (importer.TriggerResult, error) {
	feeds := feedURLs
	if len(feeds) == 0 {
		feeds = o.cfg.DefaultFeeds
	}
	if len(feeds) == 0 {
		return importer.TriggerResult{}, importer.ErrNoFeeds
	}

	runID, err := o.ids.NewID()
	if err != nil {
		return importer.TriggerResult{}, fmt.Errorf("generate run id: %w", err)
	}
	label := "multiple"
	if len(feeds) == 1 {
		label = feeds[0]
	}

	if err := o.runStore.CreateRun(ctx, runID, label, o.clock.Now()); err != nil {
		return importer.TriggerResult{}, fmt.Errorf("create run: %w", err)
	}
	metrics.ObserveRun()
	o.logger.Info("import run started",
		zap.String("run_id", runID),
		zap.Int("feeds", len(feeds)),
	)

	result := importer.TriggerResult{RunID: runID}
	for i, feedURL := range feeds {
		fr := o.importFeed(ctx, runID, i, feedURL)
		result.Results = append(result.Results, fr)
	}

	if err := o.runStore.StartRun(ctx, runID); err != nil {
		return result, fmt.Errorf("start run: %w", err)
	}
	return result, nil
}

// importFeed fetches and enqueues one feed. Failures are confined to the
// feed that caused them.
func (o *Orchestrator) importFeed(ctx context.Context, runID string, index int, feedURL string) importer.FeedResult {
	items, raw, err := o.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		metrics.ObserveFeedFetch(feedURL, "error")
		o.logger.Error("feed fetch failed",
			zap.String("run_id", runID),
			zap.String("feed_url", feedURL),
			zap.Error(err),
		)
		return importer.FeedResult{FeedURL: feedURL, Error: err.Error()}
	}
	metrics.ObserveFeedFetch(feedURL, "success")

	o.archiveFeed(ctx, runID, index, feedURL, raw)

	if err := o.runStore.IncrementFetched(ctx, runID, len(items)); err != nil {
		o.logger.Error("increment fetched failed", zap.String("run_id", runID), zap.Error(err))
	}
	if err := o.runStore.AddPending(ctx, runID, len(items)); err != nil {
		o.logger.Error("add pending failed", zap.String("run_id", runID), zap.Error(err))
	}

	opts := importer.EnqueueOptions{Attempts: o.cfg.Attempts, Backoff: o.cfg.Backoff}
	enqueued := 0
	for _, item := range items {
		work := importer.WorkItem{RunID: runID, FeedURL: feedURL, Item: item}
		if err := o.queue.Enqueue(ctx, work, opts); err != nil {
			o.logger.Error("enqueue failed",
				zap.String("run_id", runID),
				zap.String("feed_url", feedURL),
				zap.String("external_id", item.ExternalID),
				zap.Error(err),
			)
			// nothing will ever finish an item that never reached the
			// queue, so take it back out of the pending count
			if err := o.runStore.FinishItem(ctx, runID); err != nil {
				o.logger.Error("finish item failed", zap.String("run_id", runID), zap.Error(err))
			}
			continue
		}
		enqueued++
	}

	o.logger.Info("feed enqueued",
		zap.String("run_id", runID),
		zap.String("feed_url", feedURL),
		zap.Int("fetched", len(items)),
		zap.Int("enqueued", enqueued),
	)
	return importer.FeedResult{FeedURL: feedURL, Fetched: len(items)}
}

// archiveFeed stores the raw feed document for later inspection. Archival
// is best effort and never fails the feed.
func (o *Orchestrator) archiveFeed(ctx context.Context, runID string, index int, feedURL string, raw []byte) {
	if !o.cfg.ArchiveFeeds || o.blobStore == nil || len(raw) == 0 {
		return
	}
	path := fmt.Sprintf("feeds/%s/%s-%d.xml", runID, sanitizeHost(feedURL), index)
	uri, err := o.blobStore.PutObject(ctx, path, "application/xml", raw)
	if err != nil {
		o.logger.Warn("feed archive failed",
			zap.String("run_id", runID),
			zap.String("feed_url", feedURL),
			zap.Error(err),
		)
		return
	}
	o.logger.Debug("feed archived", zap.String("run_id", runID), zap.String("blob_uri", uri))
}

func sanitizeHost(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "feed"
	}
	host := strings.ToLower(u.Host)
	var b strings.Builder
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
