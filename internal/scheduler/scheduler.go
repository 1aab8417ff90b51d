// Package scheduler wires up the cron job that periodically triggers
// an import over the configured feeds.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// Trigger starts an import run. The scheduler passes no feeds, so the
// configured defaults are used.
type Trigger interface {
	Trigger(ctx context.Context, feedURLs []string) (importer.TriggerResult, error)
}

// Scheduler wraps robfig/cron and manages the periodic import loop.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	spec    string
	logger  *zap.Logger
}

// New creates a Scheduler firing on the given cron spec.
func New(trigger Trigger, spec string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the import job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runImport(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running
// import to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runImport(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.trigger.Trigger(ctx, nil)
	if err != nil {
		s.logger.Error("scheduled import failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled import triggered", zap.String("run_id", result.RunID))
}
