package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/queue"
)

func newTestWorker(t *testing.T, store *queue.MemoryStorage, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()

	base := []queue.WorkerOption{
		queue.WithQueues("notifications"),
		queue.WithPullInterval(10 * time.Millisecond),
		queue.WithMaxConcurrentJobs(2),
	}
	w, err := queue.NewWorker(store, append(base, opts...)...)
	require.NoError(t, err)
	return w
}

func TestWorker_ProcessesJob(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	processed := make(chan string, 1)
	w := newTestWorker(t, store)
	require.NoError(t, w.RegisterHandler(queue.NewJobHandler(func(ctx context.Context, p deliverPayload) error {
		processed <- p.NotificationID
		return nil
	})))

	enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue("notifications"))
	require.NoError(t, err)
	_, err = enq.Enqueue(context.Background(), deliverPayload{NotificationID: "n-1"})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	select {
	case id := <-processed:
		assert.Equal(t, "n-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}

	require.Eventually(t, func() bool {
		stats, err := store.Stats(context.Background(), "notifications")
		return err == nil && stats.Completed == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	var (
		attempts atomic.Int32
		mu       sync.Mutex
		deadJobs []queue.Job
	)

	w := newTestWorker(t, store, queue.WithFailureObserver(func(job queue.Job, err error) {
		mu.Lock()
		deadJobs = append(deadJobs, job)
		mu.Unlock()
	}))
	require.NoError(t, w.RegisterHandler(queue.NewJobHandler(func(ctx context.Context, p deliverPayload) error {
		attempts.Add(1)
		return errors.New("provider unavailable")
	})))

	enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue("notifications"))
	require.NoError(t, err)
	_, err = enq.Enqueue(context.Background(), deliverPayload{NotificationID: "n-1"},
		queue.WithMaxRetries(2),
		queue.WithBackoff(queue.FixedBackoff(0)))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deadJobs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(2), attempts.Load())

	mu.Lock()
	dead := deadJobs[0]
	mu.Unlock()
	assert.Equal(t, int8(2), dead.RetryCount)

	// Dead-lettered jobs are never re-delivered.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestWorker_PermanentFailureSkipsRetries(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	var attempts atomic.Int32
	dead := make(chan queue.Job, 1)

	w := newTestWorker(t, store, queue.WithFailureObserver(func(job queue.Job, err error) {
		dead <- job
	}))
	require.NoError(t, w.RegisterHandler(queue.NewJobHandler(func(ctx context.Context, p deliverPayload) error {
		attempts.Add(1)
		return fmt.Errorf("%w: notification record missing", queue.ErrPermanent)
	})))

	enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue("notifications"))
	require.NoError(t, err)
	_, err = enq.Enqueue(context.Background(), deliverPayload{NotificationID: "n-1"},
		queue.WithMaxRetries(5),
		queue.WithBackoff(queue.FixedBackoff(0)))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	select {
	case <-dead:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not dead-lettered")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load(), "permanent failures must not be retried")
}

func TestWorker_PanicIsTreatedAsFailure(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	var attempts atomic.Int32
	done := make(chan struct{}, 1)

	w := newTestWorker(t, store)
	require.NoError(t, w.RegisterHandler(queue.NewJobHandler(func(ctx context.Context, p deliverPayload) error {
		if attempts.Add(1) == 1 {
			panic("sender blew up")
		}
		done <- struct{}{}
		return nil
	})))

	enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue("notifications"))
	require.NoError(t, err)
	_, err = enq.Enqueue(context.Background(), deliverPayload{NotificationID: "n-1"},
		queue.WithMaxRetries(3),
		queue.WithBackoff(queue.FixedBackoff(0)))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not recover after panic")
	}

	assert.Equal(t, int32(2), attempts.Load())
}

func TestWorker_MissingHandlerGoesToDLQ(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	dead := make(chan queue.Job, 1)
	w := newTestWorker(t, store, queue.WithFailureObserver(func(job queue.Job, err error) {
		dead <- job
	}))
	// Register a handler for a different payload type so the worker starts.
	require.NoError(t, w.RegisterHandler(queue.NewNamedJobHandler("other", func(ctx context.Context, p deliverPayload) error {
		return nil
	})))

	enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue("notifications"))
	require.NoError(t, err)
	_, err = enq.Enqueue(context.Background(), deliverPayload{NotificationID: "n-1"})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	select {
	case job := <-dead:
		assert.Equal(t, "notifications", job.Queue)
	case <-time.After(5 * time.Second):
		t.Fatal("unhandled job was not dead-lettered")
	}
}

func TestWorker_PauseAndResume(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	processed := make(chan struct{}, 4)
	w := newTestWorker(t, store)
	require.NoError(t, w.RegisterHandler(queue.NewJobHandler(func(ctx context.Context, p deliverPayload) error {
		processed <- struct{}{}
		return nil
	})))

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	w.Pause()
	assert.True(t, w.Paused())

	enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue("notifications"))
	require.NoError(t, err)
	_, err = enq.Enqueue(context.Background(), deliverPayload{NotificationID: "n-1"})
	require.NoError(t, err)

	// Paused workers stop claiming but keep enqueued jobs intact.
	select {
	case <-processed:
		t.Fatal("paused worker processed a job")
	case <-time.After(100 * time.Millisecond):
	}

	stats, err := store.Stats(context.Background(), "notifications")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Waiting)

	w.Resume()

	select {
	case <-processed:
	case <-time.After(5 * time.Second):
		t.Fatal("resumed worker did not process the job")
	}
}

func TestWorker_StartValidation(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	defer store.Close()

	w, err := queue.NewWorker(store)
	require.NoError(t, err)

	assert.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)

	_, err = queue.NewWorker(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
}
