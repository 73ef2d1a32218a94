package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues            []string
	pullInterval      time.Duration
	lockTimeout       time.Duration
	maxConcurrentJobs int
	logger            *slog.Logger
	observer          FailureObserver
}

// WithQueues sets which queues the worker should pull from.
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often the worker checks for ready jobs.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets the claim lock duration. Jobs still locked past this
// deadline are considered abandoned and become claimable again.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMaxConcurrentJobs sets the worker pool size.
func WithMaxConcurrentJobs(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentJobs = n
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFailureObserver registers a callback invoked when a job is moved to
// the dead letter queue.
func WithFailureObserver(observer FailureObserver) WorkerOption {
	return func(o *workerOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}
