package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces bus traffic inside a shared Redis instance.
const DefaultChannelPrefix = "eventbus:"

// RedisTransport relays envelopes between nodes over Redis pub/sub. Delivery
// is best-effort: nodes that are down when a message is published never see
// it, which matches the bus's at-most-once-per-node contract.
type RedisTransport struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

// RedisTransportOption configures a RedisTransport.
type RedisTransportOption func(*RedisTransport)

// WithChannelPrefix overrides the Redis channel namespace.
func WithChannelPrefix(prefix string) RedisTransportOption {
	return func(t *RedisTransport) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithTransportLogger sets the logger for the transport.
func WithTransportLogger(logger *slog.Logger) RedisTransportOption {
	return func(t *RedisTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewRedisTransport creates a Redis-backed cross-node transport.
func NewRedisTransport(client redis.UniversalClient, opts ...RedisTransportOption) *RedisTransport {
	t := &RedisTransport{
		client: client,
		prefix: DefaultChannelPrefix,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Publish forwards the envelope to every subscribed node.
func (t *RedisTransport) Publish(ctx context.Context, env Envelope) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return t.client.Publish(ctx, t.prefix+env.Event, payload).Err()
}

// Receive subscribes to all bus channels under the configured prefix and
// returns a channel of decoded envelopes. Malformed messages are logged and
// dropped rather than terminating the stream.
func (t *RedisTransport) Receive(ctx context.Context) (<-chan Envelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}

	t.pubsub = t.client.PSubscribe(ctx, t.prefix+"*")

	// Force the subscription to be established before returning so callers
	// do not miss envelopes published right after Receive.
	if _, err := t.pubsub.Receive(ctx); err != nil {
		_ = t.pubsub.Close()
		t.pubsub = nil
		return nil, err
	}

	out := make(chan Envelope)
	msgs := t.pubsub.Channel()

	go func() {
		defer close(out)
		for msg := range msgs {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				t.logger.Warn("dropping malformed cross-node event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()))
				continue
			}

			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close terminates the subscription. The underlying Redis client is owned by
// the caller and is left open.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.pubsub != nil {
		return t.pubsub.Close()
	}
	return nil
}
