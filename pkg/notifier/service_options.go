package notifier

import (
	"log/slog"

	"github.com/notifykit/notify/pkg/eventbus"
	"github.com/notifykit/notify/pkg/queue"
)

// Option configures a Service.
type Option func(*Service)

// WithBus attaches the event bus. The service subscribes to the requested
// event and publishes lifecycle status events.
func WithBus(bus *eventbus.Bus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithEnqueuer sets the job queue producer used for delivery jobs.
func WithEnqueuer(e *queue.Enqueuer) Option {
	return func(s *Service) {
		s.enqueuer = e
	}
}

// WithRenderer sets the template renderer. Requests referencing a template
// fail at processing time without one.
func WithRenderer(r TemplateRenderer) Option {
	return func(s *Service) {
		s.renderer = r
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithQueue overrides the queue name delivery jobs are enqueued on.
func WithQueue(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.queueName = name
		}
	}
}

// WithBackoffPolicy sets the retry backoff applied to delivery jobs.
func WithBackoffPolicy(policy queue.BackoffPolicy) Option {
	return func(s *Service) {
		s.backoff = policy
	}
}

// WithMaxAttempts overrides the default processing attempt budget applied
// to requests that do not set their own. Budgets beyond MaxAttemptsLimit
// are clamped; the queue cannot retry past its own limit.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > MaxAttemptsLimit {
			n = MaxAttemptsLimit
		}
		if n > 0 {
			s.maxAttempts = n
		}
	}
}
