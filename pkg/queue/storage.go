package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the persistence interface for job creation.
type EnqueuerRepository interface {
	CreateJob(ctx context.Context, job *Job) error
}

// WorkerRepository defines the persistence interface for job processing.
// ClaimJob must be a single conditional update: a job may only move to
// processing if it is still claimable, so two workers never hold the same
// job.
type WorkerRepository interface {
	// ClaimJob atomically claims the next ready job across the given queues,
	// respecting priority (higher first), scheduled time, and expired locks.
	// Returns ErrNoJobToClaim when nothing is ready.
	ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error)

	// CompleteJob marks a claimed job as completed.
	CompleteJob(ctx context.Context, jobID uuid.UUID) error

	// FailJob records the failure, increments the retry count, and either
	// reschedules the job using its backoff policy or marks it failed when
	// retries are exhausted. Returns the updated job.
	FailJob(ctx context.Context, job *Job, errMsg string) (*Job, error)

	// MoveToDLQ moves a job to the dead letter queue. The job is removed
	// from the main store and never re-delivered.
	MoveToDLQ(ctx context.Context, jobID uuid.UUID) error
}

// StatsRepository exposes eventually-consistent queue counters.
type StatsRepository interface {
	Stats(ctx context.Context, queue string) (Stats, error)
}

// Storage combines all queue repository interfaces.
type Storage interface {
	EnqueuerRepository
	WorkerRepository
	StatsRepository
}
