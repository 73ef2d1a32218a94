package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// FailureObserver is notified when a job is dead-lettered. It runs on the
// worker goroutine that processed the job and must not block.
type FailureObserver func(job Job, err error)

// Worker claims jobs from the queue and dispatches them to handlers.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex // protects stopping state and WaitGroup operations

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger
	observer     FailureObserver

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
	paused   atomic.Bool
}

// NewWorker creates a new job worker.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:            []string{DefaultQueueName},
		pullInterval:      time.Second,
		lockTimeout:       5 * time.Minute,
		maxConcurrentJobs: 1,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentJobs),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger,
		observer:     options.observer,
	}, nil
}

// RegisterHandler registers a single job handler.
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple job handlers.
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start begins processing jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}

	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run()

	w.logger.Info("queue worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for active jobs to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("queue worker stopping, waiting for active jobs",
		slog.String("worker_id", w.workerID.String()))

	w.wg.Wait()

	w.logger.Info("queue worker stopped",
		slog.String("worker_id", w.workerID.String()))

	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// Pause stops claiming new jobs without dropping enqueued ones. Jobs already
// being processed run to completion.
func (w *Worker) Pause() {
	w.paused.Store(true)
	w.logger.Info("queue worker paused",
		slog.String("worker_id", w.workerID.String()))
}

// Resume restarts claiming after a Pause.
func (w *Worker) Resume() {
	w.paused.Store(false)
	w.logger.Info("queue worker resumed",
		slog.String("worker_id", w.workerID.String()))
}

// Paused reports whether the worker is currently paused.
func (w *Worker) Paused() bool {
	return w.paused.Load()
}

// run is the main processing loop.
func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.paused.Load() {
				continue
			}

			select {
			case w.sem <- struct{}{}:
				// stopMu ensures we never add to the WaitGroup after Stop()
				// has begun waiting on it.
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}

				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil {
						if !errors.Is(err, ErrHandlerNotFound) {
							w.logger.Error("failed to process job",
								slog.String("worker_id", w.workerID.String()),
								slog.String("error", err.Error()))
						}
					}
				}()
			default:
				// All slots busy, skip this tick.
				w.logger.Debug("all worker slots busy, skipping tick",
					slog.String("worker_id", w.workerID.String()))
			}
		}
	}
}

// pullAndProcess claims a job and processes it.
func (w *Worker) pullAndProcess() error {
	job, err := w.repo.ClaimJob(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	if job == nil {
		return nil
	}

	w.logger.Debug("claimed job",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("queue", job.Queue))

	return w.processJob(job)
}

// processJob executes a job with its handler.
func (w *Worker) processJob(job *Job) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			w.logger.Error("job handler panicked",
				slog.String("worker_id", w.workerID.String()),
				slog.String("job_id", job.ID.String()),
				slog.String("job_name", job.Name),
				slog.Any("panic", r))
			_ = w.handleJobFailure(job, retErr)
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[job.Name]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(job)
	}

	// The handler context is bound to the lock timeout rather than the
	// worker lifecycle so graceful shutdown lets in-flight jobs complete.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	err := handler.Handle(ctx, job.Payload)
	duration := time.Since(start)

	if err != nil {
		return w.handleJobFailure(job, err)
	}

	return w.handleJobSuccess(job, duration)
}

// handleMissingHandler dead-letters jobs that have no registered handler.
// Retrying cannot help until the handler code is deployed, and operators can
// requeue from the DLQ once it is.
func (w *Worker) handleMissingHandler(job *Job) error {
	w.logger.Error("no handler registered for job name",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name))

	errMissing := fmt.Errorf("%w: %s", ErrHandlerNotFound, job.Name)

	if _, err := w.repo.FailJob(w.ctx, job, errMissing.Error()); err != nil {
		return fmt.Errorf("failed to mark job %s as failed: %w", job.ID, err)
	}
	if err := w.repo.MoveToDLQ(w.ctx, job.ID); err != nil {
		return fmt.Errorf("failed to move job %s to DLQ: %w", job.ID, err)
	}

	w.notifyFailure(*job, errMissing)

	return ErrHandlerNotFound
}

// handleJobFailure records the failure and decides between retry and DLQ.
// FailJob owns the retry bookkeeping: it increments the count and either
// reschedules using the job's backoff policy or marks the job failed. A
// failed result here, or an error wrapped with ErrPermanent, ends in the
// dead letter queue and a failure observer notification.
func (w *Worker) handleJobFailure(job *Job, execErr error) error {
	w.logger.Error("job failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.Int("retry_count", int(job.RetryCount)),
		slog.Int("max_retries", int(job.MaxRetries)),
		slog.String("error", execErr.Error()))

	updated, err := w.repo.FailJob(w.ctx, job, execErr.Error())
	if err != nil {
		return fmt.Errorf("failed to update job %s status to failed: %w", job.ID, err)
	}

	exhausted := updated.Status == StatusFailed
	permanent := errors.Is(execErr, ErrPermanent)

	if !exhausted && !permanent {
		return nil
	}

	if err := w.repo.MoveToDLQ(w.ctx, job.ID); err != nil {
		return fmt.Errorf("failed to move job %s to DLQ: %w", job.ID, err)
	}

	w.logger.Warn("job moved to dead letter queue",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.Bool("permanent", permanent))

	w.notifyFailure(*updated, execErr)

	return nil
}

// handleJobSuccess marks the job completed.
func (w *Worker) handleJobSuccess(job *Job, duration time.Duration) error {
	if err := w.repo.CompleteJob(w.ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}

	w.logger.Info("job completed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("queue", job.Queue),
		slog.Duration("duration", duration))

	return nil
}

func (w *Worker) notifyFailure(job Job, err error) {
	if w.observer != nil {
		w.observer(job, err)
	}
}

// WorkerID returns the worker's unique identifier.
func (w *Worker) WorkerID() uuid.UUID {
	return w.workerID
}
