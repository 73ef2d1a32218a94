package eventbus

import "log/slog"

// Option configures a Bus.
type Option func(*busOptions)

type busOptions struct {
	transport Transport
	nodeID    string
	logger    *slog.Logger
	observer  ErrorObserver
}

// WithTransport sets the cross-node transport. Nil transports are ignored,
// leaving the default NoopTransport in place.
func WithTransport(t Transport) Option {
	return func(o *busOptions) {
		if t != nil {
			o.transport = t
		}
	}
}

// WithNodeID sets the identifier used for origin dedup. Every process in a
// cluster must use a distinct id; the default is a random UUID.
func WithNodeID(id string) Option {
	return func(o *busOptions) {
		if id != "" {
			o.nodeID = id
		}
	}
}

// WithLogger sets the logger for the bus.
func WithLogger(logger *slog.Logger) Option {
	return func(o *busOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithErrorObserver registers a callback for handler and transport failures.
func WithErrorObserver(observer ErrorObserver) Option {
	return func(o *busOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}
