package queue

import "errors"

var (
	// ErrRepositoryNil is returned when a nil repository is provided.
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when priority is outside valid range.
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrInvalidBackoff is returned for an unknown backoff kind or a
	// negative delay.
	ErrInvalidBackoff = errors.New("invalid backoff policy")

	// ErrNoJobToClaim signals that no job is currently ready. Workers treat
	// it as an idle tick, not an error.
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrHandlerNotFound is returned when no handler is registered for a
	// claimed job. Such jobs go straight to the dead letter queue because
	// retrying cannot help until the handler is deployed.
	ErrHandlerNotFound = errors.New("no handler registered for job name")

	// ErrNoHandlers is returned when a worker is started without handlers.
	ErrNoHandlers = errors.New("no job handlers registered")

	// ErrPermanent marks a handler failure that must not be retried. Wrap it
	// with fmt.Errorf("%w: ...") or errors.Join to dead-letter the job on
	// the first failure.
	ErrPermanent = errors.New("permanent job failure")

	// ErrJobNotFound is returned by storage when the referenced job does not
	// exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotProcessing is returned by storage when completing or failing
	// a job that is not claimed.
	ErrJobNotProcessing = errors.New("job is not in processing state")
)
