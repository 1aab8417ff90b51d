// Package cmd defines and implements the CLI commands for the importer executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/app"
	"github.com/jobgrid/feed-importer/internal/config"
	"github.com/jobgrid/feed-importer/internal/importer"
	"github.com/jobgrid/feed-importer/internal/logging"
	"github.com/jobgrid/feed-importer/internal/metrics"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetJobStore() importer.JobStore
	GetRunStore() importer.RunStore
	GetQueue() importer.Queue
	GetBlobStore() importer.BlobStore
	GetPublisher() importer.Publisher
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.NewApp(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importer",
		Short: "A concurrent job feed ingestion service.",
		Long: `importer fetches external RSS and Atom job feeds, normalizes their items,
and upserts them into the job store through a durable work queue with an
at-least-once worker pool. Each ingestion pass is tracked as an import run
with per-run counters and failure records.`,

		// This hook runs AFTER flags are parsed but BEFORE the subcommand's RunE.
		// Services are built here and injected via the command context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			metrics.Init()
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./importer.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newImportCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
