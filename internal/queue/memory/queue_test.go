package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobgrid/feed-importer/internal/importer"
)

func testOpts() importer.EnqueueOptions {
	return importer.EnqueueOptions{
		Attempts: 3,
		Backoff:  importer.BackoffPolicy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	defer q.Close()

	item := importer.WorkItem{RunID: "run-1", FeedURL: "https://example.com/feed", Item: importer.NormalizedItem{ExternalID: "e-1"}}
	require.NoError(t, q.Enqueue(context.Background(), item, testOpts()))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, item, d.Item)
	require.Equal(t, 1, d.Attempt)
	require.Equal(t, 3, d.Options.Attempts)
}

func TestQueueNackRedeliversWithIncrementedAttempt(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	defer q.Close()

	item := importer.WorkItem{RunID: "run-1", Item: importer.NormalizedItem{ExternalID: "e-1"}}
	require.NoError(t, q.Enqueue(context.Background(), item, testOpts()))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	requeued, err := q.Nack(context.Background(), d)
	require.NoError(t, err)
	require.True(t, requeued)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	redelivered, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, redelivered.Attempt)
	require.Equal(t, item, redelivered.Item)
}

func TestQueueNackExhaustsAttempts(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), importer.WorkItem{RunID: "run-1"}, testOpts()))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	for attempt := 1; attempt < 3; attempt++ {
		requeued, nackErr := q.Nack(context.Background(), d)
		require.NoError(t, nackErr)
		require.True(t, requeued, "attempt %d should be retried", attempt)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		d, err = q.Dequeue(ctx)
		cancel()
		require.NoError(t, err)
		require.Equal(t, attempt+1, d.Attempt)
	}

	requeued, err := q.Nack(context.Background(), d)
	require.NoError(t, err)
	require.False(t, requeued, "third failure exhausts the policy")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.Error(t, err, "exhausted item must not resurface")
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}

func TestQueueCloseUnblocksConsumers(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	q.Close()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, importer.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer was not unblocked by Close")
	}
}
