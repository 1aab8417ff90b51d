package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
)

type countingTrigger struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTrigger) Trigger(context.Context, []string) (importer.TriggerResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return importer.TriggerResult{RunID: "run-1"}, nil
}

func (c *countingTrigger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSchedulerFiresOnSpec(t *testing.T) {
	t.Parallel()

	trigger := &countingTrigger{}
	s := New(trigger, "@every 100ms", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return trigger.count() >= 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(&countingTrigger{}, "not a cron spec", zap.NewNop())
	require.Error(t, s.Start(context.Background()))
}

func TestSchedulerSkipsAfterContextCancel(t *testing.T) {
	t.Parallel()

	trigger := &countingTrigger{}
	s := New(trigger, "@every 50ms", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Start(ctx))
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	require.Zero(t, trigger.count(), "canceled context must suppress imports")
}
