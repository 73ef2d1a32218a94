package queue

import "time"

// Config holds the configuration for the job queue.
type Config struct {
	PullInterval      time.Duration `env:"QUEUE_PULL_INTERVAL" envDefault:"1s"`
	LockTimeout       time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout   time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentJobs int           `env:"QUEUE_MAX_CONCURRENT_JOBS" envDefault:"10"`
}
