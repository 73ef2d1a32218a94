package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and
// single-process deployments.
type MemoryStorage struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	dlq  map[uuid.UUID]*DeadJob

	// Indexes for efficient queries
	byQueue  map[string][]uuid.UUID
	byStatus map[Status][]uuid.UUID

	// Lock management
	lockTicker *time.Ticker
	done       chan struct{}
}

// NewMemoryStorage creates a new in-memory storage implementation.
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		jobs:     make(map[uuid.UUID]*Job),
		dlq:      make(map[uuid.UUID]*DeadJob),
		byQueue:  make(map[string][]uuid.UUID),
		byStatus: make(map[Status][]uuid.UUID),
		done:     make(chan struct{}),
	}

	// Recovers jobs claimed by workers that died without releasing locks.
	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines.
func (ms *MemoryStorage) Close() error {
	close(ms.done)
	ms.lockTicker.Stop()
	return nil
}

// CreateJob implements EnqueuerRepository.
func (ms *MemoryStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}

	// Clone to prevent external modifications.
	jobCopy := *job
	ms.jobs[job.ID] = &jobCopy

	ms.byQueue[job.Queue] = append(ms.byQueue[job.Queue], job.ID)
	ms.byStatus[job.Status] = append(ms.byStatus[job.Status], job.ID)

	return nil
}

// ClaimJob implements WorkerRepository. Selection is priority-first with
// earliest scheduled time breaking ties, so urgent work runs first while
// same-priority jobs stay fair.
func (ms *MemoryStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Job
	var bestPriority Priority = -1

	for _, jobID := range ms.byStatus[StatusPending] {
		job := ms.jobs[jobID]

		if !slices.Contains(queues, job.Queue) {
			continue
		}

		// Delayed jobs stay invisible until their scheduled time.
		if job.ScheduledAt.After(now) {
			continue
		}

		if job.LockedUntil != nil && job.LockedUntil.After(now) {
			continue
		}

		if best == nil ||
			job.Priority > bestPriority ||
			(job.Priority == bestPriority && job.ScheduledAt.Before(best.ScheduledAt)) {
			best = job
			bestPriority = job.Priority
		}
	}

	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = StatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	ms.removeFromStatusIndex(best.ID, StatusPending)
	ms.byStatus[StatusProcessing] = append(ms.byStatus[StatusProcessing], best.ID)

	jobCopy := *best
	return &jobCopy, nil
}

// CompleteJob implements WorkerRepository.
func (ms *MemoryStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.Status != StatusProcessing {
		return fmt.Errorf("%w: %s", ErrJobNotProcessing, jobID)
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.removeFromStatusIndex(jobID, StatusProcessing)
	ms.byStatus[StatusCompleted] = append(ms.byStatus[StatusCompleted], jobID)

	return nil
}

// FailJob implements WorkerRepository. The retry count only increases; once
// it reaches MaxRetries the job is marked failed, otherwise it is
// rescheduled using its own backoff policy.
func (ms *MemoryStorage) FailJob(ctx context.Context, claimed *Job, errMsg string) (*Job, error) {
	if claimed == nil {
		return nil, errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[claimed.ID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, claimed.ID)
	}

	if job.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrJobNotProcessing, claimed.ID)
	}

	job.RetryCount++
	job.Error = &errMsg
	job.LockedUntil = nil
	job.LockedBy = nil

	if job.RetryCount >= job.MaxRetries {
		job.Status = StatusFailed
		ms.removeFromStatusIndex(job.ID, StatusProcessing)
		ms.byStatus[StatusFailed] = append(ms.byStatus[StatusFailed], job.ID)
	} else {
		job.Status = StatusPending
		ms.removeFromStatusIndex(job.ID, StatusProcessing)
		ms.byStatus[StatusPending] = append(ms.byStatus[StatusPending], job.ID)

		job.ScheduledAt = time.Now().Add(job.Backoff.NextDelay(job.RetryCount))
	}

	jobCopy := *job
	return &jobCopy, nil
}

// MoveToDLQ implements WorkerRepository.
func (ms *MemoryStorage) MoveToDLQ(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	dead := &DeadJob{
		ID:         uuid.New(),
		JobID:      job.ID,
		Queue:      job.Queue,
		Name:       job.Name,
		Payload:    job.Payload,
		Priority:   job.Priority,
		RetryCount: job.RetryCount,
		FailedAt:   time.Now(),
		CreatedAt:  job.CreatedAt,
	}
	if job.Error != nil {
		dead.Error = *job.Error
	}

	ms.dlq[dead.ID] = dead

	ms.removeFromStatusIndex(jobID, job.Status)
	ms.removeFromQueueIndex(jobID, job.Queue)
	delete(ms.jobs, jobID)

	return nil
}

// Stats implements StatsRepository. The snapshot is taken under the read
// lock but carries no atomicity guarantee against concurrent producers.
func (ms *MemoryStorage) Stats(ctx context.Context, queue string) (Stats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	now := time.Now()
	var stats Stats

	for _, jobID := range ms.byQueue[queue] {
		job, exists := ms.jobs[jobID]
		if !exists {
			continue
		}

		switch job.Status {
		case StatusPending:
			if job.ScheduledAt.After(now) {
				stats.Delayed++
			} else {
				stats.Waiting++
			}
		case StatusProcessing:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}

	// Dead-lettered jobs left the main store but still count as failures.
	for _, dead := range ms.dlq {
		if dead.Queue == queue {
			stats.Failed++
		}
	}

	return stats, nil
}

// DeadJobs returns a snapshot of the dead letter queue for a given queue
// name, most recent failure first.
func (ms *MemoryStorage) DeadJobs(queue string) []DeadJob {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]DeadJob, 0, len(ms.dlq))
	for _, dead := range ms.dlq {
		if dead.Queue == queue {
			out = append(out, *dead)
		}
	}

	slices.SortFunc(out, func(a, b DeadJob) int {
		return b.FailedAt.Compare(a.FailedAt)
	})

	return out
}

// Helper methods

func (ms *MemoryStorage) removeFromStatusIndex(jobID uuid.UUID, status Status) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == jobID
	})
}

func (ms *MemoryStorage) removeFromQueueIndex(jobID uuid.UUID, queue string) {
	ms.byQueue[queue] = slices.DeleteFunc(ms.byQueue[queue], func(id uuid.UUID) bool {
		return id == jobID
	})
}

// lockExpirationManager recovers jobs from dead workers. Without it, jobs
// locked by a crashed worker would be stuck in processing forever.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

// expireLocks resets processing jobs whose lock deadline passed back to
// pending. The retry count is preserved; only the lock is released.
func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, jobID := range slices.Clone(ms.byStatus[StatusProcessing]) {
		job := ms.jobs[jobID]
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			job.Status = StatusPending
			job.LockedUntil = nil
			job.LockedBy = nil

			ms.removeFromStatusIndex(jobID, StatusProcessing)
			ms.byStatus[StatusPending] = append(ms.byStatus[StatusPending], jobID)
		}
	}
}
