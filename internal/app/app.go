// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/config"
	"github.com/jobgrid/feed-importer/internal/importer"
	memorypublisher "github.com/jobgrid/feed-importer/internal/publisher/memory"
	pubsubpublisher "github.com/jobgrid/feed-importer/internal/publisher/pubsub"
	queueMemory "github.com/jobgrid/feed-importer/internal/queue/memory"
	queueRedis "github.com/jobgrid/feed-importer/internal/queue/redis"
	"github.com/jobgrid/feed-importer/internal/storage/gcs"
	memoryStorage "github.com/jobgrid/feed-importer/internal/storage/memory"
	"github.com/jobgrid/feed-importer/internal/storage/postgres"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the components that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	jobStore  importer.JobStore
	runStore  importer.RunStore
	queue     importer.Queue
	blobStore importer.BlobStore
	publisher importer.Publisher
	closers   []func()
}

// GetConfig returns the resolved application configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetJobStore provides access to the job upsert store.
func (a *App) GetJobStore() importer.JobStore {
	return a.jobStore
}

// GetRunStore provides access to the import run bookkeeping store.
func (a *App) GetRunStore() importer.RunStore {
	return a.runStore
}

// GetQueue returns the work item queue feeding the worker pool.
func (a *App) GetQueue() importer.Queue {
	return a.queue
}

// GetBlobStore exposes the configured feed archive storage provider.
func (a *App) GetBlobStore() importer.BlobStore {
	return a.blobStore
}

// GetPublisher returns the publisher used to emit per-item import outcomes.
func (a *App) GetPublisher() importer.Publisher {
	return a.publisher
}

// Close shuts down the held services in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// NewApp creates and initializes a new App struct based on the application's configuration.
// It instantiates the appropriate providers (Postgres or memory stores, Redis or memory
// queue, GCS or memory blob storage, Pub/Sub or memory publisher) and fails fast if any
// critical service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initBlobStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.cfg.DB.Provider {
	case "postgres":
		a.logger.Info("connecting to postgres")
		poolCfg := postgres.PoolConfig{
			DSN:      a.cfg.DB.DSN,
			MaxConns: a.cfg.DB.MaxConns,
			MinConns: a.cfg.DB.MinConns,
		}
		jobStore, err := postgres.NewJobStore(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("postgres job store: %w", err)
		}
		a.closers = append(a.closers, jobStore.Close)
		runStore, err := postgres.NewRunStore(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("postgres run store: %w", err)
		}
		a.closers = append(a.closers, runStore.Close)
		a.jobStore, a.runStore = jobStore, runStore
	default:
		a.logger.Info("using in-memory stores")
		a.jobStore = memoryStorage.NewJobStore()
		a.runStore = memoryStorage.NewRunStore()
	}
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	switch a.cfg.Queue.Provider {
	case "redis":
		a.logger.Info("connecting to redis queue", zap.String("name", a.cfg.Queue.Name))
		q, err := queueRedis.New(ctx, queueRedis.Config{
			URL:  a.cfg.Queue.RedisURL,
			Name: a.cfg.Queue.Name,
		}, a.logger.Named("queue"))
		if err != nil {
			return fmt.Errorf("redis queue: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := q.Close(); cerr != nil {
				a.logger.Error("queue close error", zap.Error(cerr))
			}
		})
		a.queue = q
	default:
		a.logger.Info("using in-memory queue", zap.Int("depth", a.cfg.Queue.Depth))
		q := queueMemory.NewQueue(a.cfg.Queue.Depth)
		a.closers = append(a.closers, q.Close)
		a.queue = q
	}
	return nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case "gcs":
		a.logger.Info("using GCS blob storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.logger.Error("gcs client close error", zap.Error(cerr))
			}
		})
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store: %w", err)
		}
		a.blobStore = store
	default:
		a.blobStore = memoryStorage.NewBlobStore()
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		a.publisher = memorypublisher.New()
		return nil
	}
	a.logger.Info("connecting to pub/sub", zap.String("project", a.cfg.PubSub.ProjectID))
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pub.Close)
	a.publisher = pub
	return nil
}
