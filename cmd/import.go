package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// newImportCmd creates and configures the 'import' subcommand.
// It runs a single ingestion pass and exits once the run completes,
// which makes it suitable for cron jobs and one-off backfills.
func newImportCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "import [feed-url...]",
		Short: "Runs a single import pass and exits",
		Long: `Fetches the given feed URLs (or the configured defaults when none are given),
enqueues their items, processes the queue with the worker pool, and waits
for the run to complete before exiting.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportCommand(cmd, args, wait)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Minute, "maximum time to wait for the run to complete")
	return cmd
}

func runImportCommand(cmd *cobra.Command, feedURLs []string, wait time.Duration) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	ctx, cancel := context.WithTimeout(cmd.Context(), wait)
	defer cancel()

	orch, dispatch := buildPipeline(appInstance)
	go dispatch.Run(ctx)

	result, err := orch.Trigger(ctx, feedURLs)
	if err != nil {
		return fmt.Errorf("trigger import: %w", err)
	}
	logger.Info("import triggered", zap.String("run_id", result.RunID))

	run, err := awaitRun(ctx, appInstance.GetRunStore(), result.RunID)
	if err != nil {
		return err
	}

	logger.Info("import finished",
		zap.String("run_id", run.RunID),
		zap.String("status", string(run.Status)),
		zap.Int("fetched", run.TotalFetched),
		zap.Int("created", run.NewJobs),
		zap.Int("updated", run.UpdatedJobs),
		zap.Int("failed", run.FailedJobsCount),
	)
	return nil
}

// awaitRun polls the run store until the run leaves the running state or the
// context expires.
func awaitRun(ctx context.Context, runs importer.RunStore, runID string) (importer.ImportRun, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		run, err := runs.GetRun(ctx, runID)
		if err != nil {
			return importer.ImportRun{}, fmt.Errorf("poll run %s: %w", runID, err)
		}
		if run.Status == importer.RunStatusCompleted {
			return run, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return run, fmt.Errorf("run %s did not complete in time", runID)
			}
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}
