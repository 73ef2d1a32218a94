package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority represents job priority (0-100, higher is more important).
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range.
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Job represents a unit of work in the queue. A Job is immutable once
// persisted except for its status, lock, and retry bookkeeping, all of which
// are owned by the storage layer.
type Job struct {
	ID          uuid.UUID     `json:"id"`
	Queue       string        `json:"queue"`
	Name        string        `json:"name"`
	Payload     []byte        `json:"payload,omitempty"`
	Status      Status        `json:"status"`
	Priority    Priority      `json:"priority"`
	RetryCount  int8          `json:"retry_count"`
	MaxRetries  int8          `json:"max_retries"`
	Backoff     BackoffPolicy `json:"backoff"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID    `json:"locked_by,omitempty"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
	Error       *string       `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// DeadJob is a job that exhausted its retry budget (or failed permanently)
// and was moved to the dead letter queue for manual inspection. Dead jobs are
// never re-delivered automatically.
type DeadJob struct {
	ID         uuid.UUID `json:"id"`
	JobID      uuid.UUID `json:"job_id"`
	Queue      string    `json:"queue"`
	Name       string    `json:"name"`
	Payload    []byte    `json:"payload,omitempty"`
	Priority   Priority  `json:"priority"`
	Error      string    `json:"error"`
	RetryCount int8      `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats is an eventually-consistent snapshot of a queue's job counts. The
// counts are taken without atomicity against concurrent producers and
// workers; totals reconcile, exact splits depend on timing.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}
