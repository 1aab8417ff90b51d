package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/api"
	"github.com/jobgrid/feed-importer/internal/clock/system"
	"github.com/jobgrid/feed-importer/internal/dispatcher"
	"github.com/jobgrid/feed-importer/internal/feed"
	"github.com/jobgrid/feed-importer/internal/id/uuid"
	"github.com/jobgrid/feed-importer/internal/pipeline"
	"github.com/jobgrid/feed-importer/internal/scheduler"
	"github.com/jobgrid/feed-importer/internal/worker"
)

// newServeCmd creates and configures the 'serve' subcommand.
// This command runs the long-lived importer service: the HTTP API, the worker
// pool draining the queue, and optionally the cron scheduler.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the importer service",
		Long: `Starts the HTTP API, the queue worker pool, and the cron scheduler.
The service runs until it receives SIGINT or SIGTERM, then drains and
shuts down gracefully.`,

		RunE: runServeCommand,
	}
	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, dispatch := buildPipeline(appInstance)

	apiServer := api.NewServer(orch, appInstance.GetRunStore(), appInstance.GetJobStore(), cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("concurrency", cfg.Importer.Concurrency))
		dispatch.Run(ctx)
	}()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(orch, cfg.Scheduler.Cron, logger.Named("scheduler"))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if sched != nil {
		sched.Stop()
	}
	logger.Info("shutdown complete")
	return nil
}

// buildPipeline assembles the orchestrator and the worker pool dispatcher from
// the application's shared services.
func buildPipeline(appInstance App) (*pipeline.Orchestrator, *dispatcher.Dispatcher) {
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()
	fetcher := feed.New(feed.Config{
		Timeout:      cfg.FetchTimeout(),
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, logger.Named("fetcher"))

	workerCfg := worker.Config{Topic: cfg.PubSub.TopicName}
	var workers []*worker.Worker
	for i := 0; i < cfg.Importer.Concurrency; i++ {
		workers = append(workers, worker.New(
			appInstance.GetQueue(),
			appInstance.GetJobStore(),
			appInstance.GetRunStore(),
			appInstance.GetPublisher(),
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(appInstance.GetQueue(), workers)

	orch := pipeline.New(
		fetcher,
		appInstance.GetQueue(),
		appInstance.GetRunStore(),
		appInstance.GetBlobStore(),
		idGen,
		clock,
		pipeline.Config{
			DefaultFeeds: cfg.Importer.Feeds,
			Attempts:     cfg.Queue.Attempts,
			Backoff:      cfg.Backoff(),
			ArchiveFeeds: cfg.Importer.ArchiveFeeds,
		},
		logger.Named("pipeline"),
	)
	return orch, dispatch
}
