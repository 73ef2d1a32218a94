package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/queue"
)

func enqueue(t *testing.T, store *queue.MemoryStorage, queueName string, opts ...queue.EnqueueOption) uuid.UUID {
	t.Helper()

	enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue(queueName))
	require.NoError(t, err)

	id, err := enq.Enqueue(context.Background(), deliverPayload{NotificationID: uuid.NewString()}, opts...)
	require.NoError(t, err)
	return id
}

func TestMemoryStorage_ClaimOrdersByPriority(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	enqueue(t, store, "notifications", queue.WithPriority(queue.PriorityLow))
	highID := enqueue(t, store, "notifications", queue.WithPriority(queue.PriorityHigh))
	enqueue(t, store, "notifications", queue.WithPriority(queue.PriorityMedium))

	job, err := store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, highID, job.ID)
	assert.Equal(t, queue.StatusProcessing, job.Status)
}

func TestMemoryStorage_ClaimIsExclusive(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	enqueue(t, store, "notifications")

	_, err := store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, time.Minute)
	require.NoError(t, err)

	// The single job is locked; a second worker finds nothing.
	_, err = store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
}

func TestMemoryStorage_FailReschedulesWithBackoff(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	enqueue(t, store, "notifications",
		queue.WithMaxRetries(3),
		queue.WithBackoff(queue.FixedBackoff(time.Hour)))

	job, err := store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, time.Minute)
	require.NoError(t, err)

	updated, err := store.FailJob(context.Background(), job, "provider timeout")
	require.NoError(t, err)

	assert.Equal(t, queue.StatusPending, updated.Status)
	assert.Equal(t, int8(1), updated.RetryCount)
	require.NotNil(t, updated.Error)
	assert.Equal(t, "provider timeout", *updated.Error)
	// Rescheduled one backoff interval into the future.
	assert.WithinDuration(t, time.Now().Add(time.Hour), updated.ScheduledAt, time.Minute)
}

func TestMemoryStorage_RetryCountNeverExceedsMax(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	enqueue(t, store, "notifications",
		queue.WithMaxRetries(2),
		queue.WithBackoff(queue.FixedBackoff(0)))

	workerID := uuid.New()
	for i := 0; i < 2; i++ {
		job, err := store.ClaimJob(context.Background(), workerID, []string{"notifications"}, time.Minute)
		require.NoError(t, err)

		updated, err := store.FailJob(context.Background(), job, "boom")
		require.NoError(t, err)
		assert.LessOrEqual(t, updated.RetryCount, updated.MaxRetries)

		if i == 1 {
			assert.Equal(t, queue.StatusFailed, updated.Status)
		} else {
			assert.Equal(t, queue.StatusPending, updated.Status)
		}
	}

	// Exhausted job is no longer claimable.
	_, err := store.ClaimJob(context.Background(), workerID, []string{"notifications"}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
}

func TestMemoryStorage_MoveToDLQ(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	jobID := enqueue(t, store, "notifications", queue.WithMaxRetries(1), queue.WithBackoff(queue.FixedBackoff(0)))

	job, err := store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, time.Minute)
	require.NoError(t, err)

	_, err = store.FailJob(context.Background(), job, "gateway rejected recipient")
	require.NoError(t, err)
	require.NoError(t, store.MoveToDLQ(context.Background(), jobID))

	dead := store.DeadJobs("notifications")
	require.Len(t, dead, 1)
	assert.Equal(t, jobID, dead[0].JobID)
	assert.Equal(t, "gateway rejected recipient", dead[0].Error)

	// Dead-lettered jobs still count as failed in stats.
	stats, err := store.Stats(context.Background(), "notifications")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
}

func TestMemoryStorage_StatsReconcile(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	enqueue(t, store, "notifications")
	enqueue(t, store, "notifications")
	enqueue(t, store, "notifications", queue.WithDelay(time.Hour))

	// Complete one of the three.
	job, err := store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.CompleteJob(context.Background(), job.ID))

	stats, err := store.Stats(context.Background(), "notifications")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 2, stats.Waiting+stats.Active+stats.Delayed)
	assert.Equal(t, 0, stats.Failed)
}

func TestMemoryStorage_ExpiredLockIsReclaimable(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	enqueue(t, store, "notifications")

	// Claim with a lock that expires almost immediately, simulating a
	// worker crash.
	_, err := store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, 10*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := store.ClaimJob(context.Background(), uuid.New(), []string{"notifications"}, time.Minute)
		return err == nil && job != nil
	}, 5*time.Second, 50*time.Millisecond)
}
