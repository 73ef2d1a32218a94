package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueuer adds jobs to the queue.
type Enqueuer struct {
	repo            EnqueuerRepository
	defaultQueue    string
	defaultPriority Priority
}

// NewEnqueuer creates a new Enqueuer.
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:            repo,
		defaultQueue:    options.defaultQueue,
		defaultPriority: options.defaultPriority,
	}, nil
}

// Enqueue adds a new job and returns its id as a handle for tracking.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:      e.defaultQueue,
		priority:   e.defaultPriority,
		maxRetries: 3,
		backoff:    DefaultBackoff(),
	}

	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}
	if !options.backoff.Valid() {
		return uuid.Nil, ErrInvalidBackoff
	}

	job, err := e.buildJob(payload, options)
	if err != nil {
		return uuid.Nil, err
	}

	if err := e.repo.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create job %q in queue %q: %w", job.Name, job.Queue, err)
	}

	return job.ID, nil
}

func (e *Enqueuer) buildJob(payload any, options *enqueueOptions) (*Job, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	name := options.jobName
	if name == "" {
		name = qualifiedStructName(payload)
	}

	scheduledAt := time.Now()
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = scheduledAt.Add(options.delay)
	}

	return &Job{
		ID:          uuid.New(),
		Queue:       options.queue,
		Name:        name,
		Payload:     payloadBytes,
		Status:      StatusPending,
		Priority:    options.priority,
		RetryCount:  0,
		MaxRetries:  options.maxRetries,
		Backoff:     options.backoff,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}, nil
}
