package queue

import (
	"context"
	"encoding/json"
)

type (
	// Handler processes claimed jobs matched by Name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// JobHandlerFunc is a typed job processing function.
	JobHandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewJobHandler wraps a typed function into a Handler. The job name defaults
// to the qualified struct name of T, matching what Enqueue derives for the
// same payload type.
func NewJobHandler[T any](handler JobHandlerFunc[T]) Handler {
	var payload T
	return &jobHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

// NewNamedJobHandler wraps a typed function under an explicit job name, for
// payloads enqueued with WithJobName.
func NewNamedJobHandler[T any](name string, handler JobHandlerFunc[T]) Handler {
	return &jobHandler[T]{
		name:    name,
		handler: handler,
	}
}

type jobHandler[T any] struct {
	name    string
	handler JobHandlerFunc[T]
}

func (h *jobHandler[T]) Name() string {
	return h.name
}

func (h *jobHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	return h.handler(ctx, t)
}
