package queue

import "time"

// MaxRetriesLimit is the largest retry count a job can carry. Callers that
// derive retries from their own attempt budgets must clamp to this value or
// WithMaxRetries falls back to the enqueuer default.
const MaxRetriesLimit int8 = 10

// EnqueuerOption is a functional option for configuring an Enqueuer.
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue    string
	defaultPriority Priority
}

// WithDefaultQueue sets the default queue name.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultPriority sets the default priority.
func WithDefaultPriority(priority Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if priority.Valid() {
			o.defaultPriority = priority
		}
	}
}

// EnqueueOption is a functional option for the Enqueue method.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxRetries  int8
	backoff     BackoffPolicy
	delay       time.Duration
	scheduledAt *time.Time
	jobName     string
}

// WithQueue sets the queue for the job.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority sets the priority for the job.
func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxRetries sets the maximum number of retries (0 to MaxRetriesLimit).
// Capped to prevent infinite retry loops on persistent failures.
func WithMaxRetries(maxRetries int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if maxRetries >= 0 && maxRetries <= MaxRetriesLimit {
			o.maxRetries = maxRetries
		}
	}
}

// WithBackoff sets the retry backoff policy for the job.
func WithBackoff(policy BackoffPolicy) EnqueueOption {
	return func(o *enqueueOptions) {
		o.backoff = policy
	}
}

// WithDelay sets a delay before the job can be processed.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt sets a specific time for the job to be processed.
func WithScheduledAt(scheduledAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &scheduledAt
	}
}

// WithJobName sets a custom job name.
func WithJobName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.jobName = name
		}
	}
}
