package presence

import (
	"log/slog"

	"github.com/notifykit/notify/pkg/eventbus"
)

// Option configures a Registry.
type Option func(*Registry)

// WithBus attaches the registry to an event bus for cross-node delivery.
func WithBus(bus *eventbus.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// WithLogger sets the logger used for dropped-connection warnings.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}
