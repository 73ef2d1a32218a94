package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements all queue repository interfaces on top of a
// pgx connection pool. The schema lives in the jobs and dead_jobs tables
// (see the queue migration shipped with pkg/pg).
//
// Claiming uses FOR UPDATE SKIP LOCKED so concurrent workers never block
// each other and each ready job is handed to exactly one worker. Jobs whose
// claim lock expired (worker crash) are claimable again without a separate
// recovery process.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a Postgres-backed queue storage.
func NewPostgresStorage(pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, ErrRepositoryNil
	}
	return &PostgresStorage{pool: pool}, nil
}

const jobColumns = `id, queue, name, payload, status, priority, retry_count, max_retries,
	backoff_kind, backoff_delay_ms, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// CreateJob implements EnqueuerRepository.
func (s *PostgresStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, queue, name, payload, status, priority, retry_count, max_retries,
			backoff_kind, backoff_delay_ms, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Queue, job.Name, job.Payload, job.Status, job.Priority,
		job.RetryCount, job.MaxRetries, job.Backoff.Kind, job.Backoff.Delay.Milliseconds(),
		job.ScheduledAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}

	return nil
}

// ClaimJob implements WorkerRepository as a single conditional update.
func (s *PostgresStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET
			status = 'processing',
			locked_until = now() + $1,
			locked_by = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = ANY($3)
			  AND (
			      (status = 'pending' AND scheduled_at <= now())
			   OR (status = 'processing' AND locked_until < now())
			  )
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		lockDuration, workerID, queues)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobToClaim
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

// CompleteJob implements WorkerRepository.
func (s *PostgresStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = 'completed',
			processed_at = now(),
			locked_until = NULL,
			locked_by = NULL
		WHERE id = $1 AND status = 'processing'`,
		jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotProcessing, jobID)
	}

	return nil
}

// FailJob implements WorkerRepository. The next-run delay is derived from
// the claimed job's backoff policy; all values are bound parameters, never
// interpolated into the statement.
func (s *PostgresStorage) FailJob(ctx context.Context, claimed *Job, errMsg string) (*Job, error) {
	if claimed == nil {
		return nil, errors.New("job cannot be nil")
	}

	nextDelay := claimed.Backoff.NextDelay(claimed.RetryCount + 1)

	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET
			retry_count = retry_count + 1,
			error = $2,
			locked_until = NULL,
			locked_by = NULL,
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at ELSE now() + $3 END
		WHERE id = $1 AND status = 'processing'
		RETURNING `+jobColumns,
		claimed.ID, errMsg, nextDelay)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotProcessing, claimed.ID)
		}
		return nil, fmt.Errorf("failed to fail job %s: %w", claimed.ID, err)
	}

	return job, nil
}

// MoveToDLQ implements WorkerRepository. The copy and delete run in one
// transaction so a job is never both dead-lettered and claimable.
func (s *PostgresStorage) MoveToDLQ(ctx context.Context, jobID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin DLQ transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO dead_jobs (id, job_id, queue, name, payload, priority, error, retry_count, failed_at, created_at)
		SELECT gen_random_uuid(), id, queue, name, payload, priority, COALESCE(error, ''), retry_count, now(), created_at
		FROM jobs WHERE id = $1`,
		jobID)
	if err != nil {
		return fmt.Errorf("failed to copy job %s to DLQ: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete job %s after DLQ copy: %w", jobID, err)
	}

	return tx.Commit(ctx)
}

// Stats implements StatsRepository.
func (s *PostgresStorage) Stats(ctx context.Context, queue string) (Stats, error) {
	var stats Stats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending' AND scheduled_at <= now()),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending' AND scheduled_at > now())
		FROM jobs WHERE queue = $1`,
		queue).Scan(&stats.Waiting, &stats.Active, &stats.Completed, &stats.Failed, &stats.Delayed)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats for %q: %w", queue, err)
	}

	var dead int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_jobs WHERE queue = $1`, queue).Scan(&dead); err != nil {
		return Stats{}, fmt.Errorf("failed to read DLQ stats for %q: %w", queue, err)
	}
	stats.Failed += dead

	return stats, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job       Job
		backoffMs int64
	)

	err := row.Scan(&job.ID, &job.Queue, &job.Name, &job.Payload, &job.Status, &job.Priority,
		&job.RetryCount, &job.MaxRetries, &job.Backoff.Kind, &backoffMs,
		&job.ScheduledAt, &job.LockedUntil, &job.LockedBy, &job.ProcessedAt, &job.Error, &job.CreatedAt)
	if err != nil {
		return nil, err
	}

	job.Backoff.Delay = time.Duration(backoffMs) * time.Millisecond
	return &job, nil
}
