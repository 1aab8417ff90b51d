// Package redis provides a durable work queue backed by Redis lists.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
)

const (
	defaultName            = "job_import_queue"
	defaultPromoteInterval = 250 * time.Millisecond
	dequeueBlock           = time.Second
	promoteBatch           = 100
)

// Config controls the Redis queue connection and key naming.
type Config struct {
	URL             string
	Name            string
	PromoteInterval time.Duration
}

// Queue distributes work items through a Redis ready list plus a
// delayed sorted set for backoff redelivery. Consumers that crash
// after dequeue lose nothing durable beyond the in-flight item, and a
// nacked item survives process restarts, giving at-least-once
// semantics.
type Queue struct {
	rdb      *redis.Client
	ready    string
	delayed  string
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
	stopped  sync.WaitGroup
}

// New parses cfg.URL, verifies connectivity, and starts the promoter
// loop that moves due delayed items back onto the ready list.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			logger.Warn("close redis client after failed ping", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = defaultName
	}
	interval := cfg.PromoteInterval
	if interval <= 0 {
		interval = defaultPromoteInterval
	}

	q := &Queue{
		rdb:      client,
		ready:    name + ":ready",
		delayed:  name + ":delayed",
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
	q.stopped.Add(1)
	go q.promoteLoop()
	return q, nil
}

// Enqueue pushes a work item onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, item importer.WorkItem, opts importer.EnqueueOptions) error {
	payload, err := json.Marshal(importer.Delivery{Item: item, Attempt: 1, Options: opts})
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.ready, payload).Err(); err != nil {
		return fmt.Errorf("lpush ready: %w", err)
	}
	return nil
}

// Dequeue blocks until a delivery is available or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (importer.Delivery, error) {
	for {
		res, err := q.rdb.BRPop(ctx, dequeueBlock, q.ready).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return importer.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return importer.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			if errors.Is(err, redis.ErrClosed) {
				return importer.Delivery{}, importer.ErrQueueClosed
			}
			return importer.Delivery{}, fmt.Errorf("brpop ready: %w", err)
		}
		if len(res) != 2 {
			return importer.Delivery{}, fmt.Errorf("unexpected brpop reply of %d elements", len(res))
		}
		var d importer.Delivery
		if err := json.Unmarshal([]byte(res[1]), &d); err != nil {
			return importer.Delivery{}, fmt.Errorf("unmarshal delivery: %w", err)
		}
		return d, nil
	}
}

// Nack schedules redelivery in the delayed set, or drops the item once
// attempts are exhausted.
func (q *Queue) Nack(ctx context.Context, d importer.Delivery) (bool, error) {
	if d.Attempt >= d.Options.Attempts {
		return false, nil
	}

	next := d
	next.Attempt++
	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("marshal delivery: %w", err)
	}
	due := time.Now().Add(d.Options.Backoff.Delay(d.Attempt))
	member := redis.Z{Score: float64(due.UnixMilli()), Member: payload}
	if err := q.rdb.ZAdd(ctx, q.delayed, member).Err(); err != nil {
		return false, fmt.Errorf("zadd delayed: %w", err)
	}
	return true, nil
}

// Close stops the promoter loop and the client connection.
func (q *Queue) Close() error {
	q.stopOnce.Do(func() {
		close(q.done)
	})
	q.stopped.Wait()
	if err := q.rdb.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (q *Queue) promoteLoop() {
	defer q.stopped.Done()
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			if err := q.promoteDue(context.Background()); err != nil {
				q.logger.Warn("promote delayed items failed", zap.Error(err))
			}
		}
	}
}

// promoteDue moves entries whose score has passed from the delayed set
// to the ready list.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore delayed: %w", err)
	}
	for _, payload := range due {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.delayed, payload)
		pipe.LPush(ctx, q.ready, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("promote delayed item: %w", err)
		}
	}
	return nil
}
