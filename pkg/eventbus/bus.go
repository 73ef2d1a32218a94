package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope is the cross-node wire shape of a published event.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	NodeID    string          `json:"node_id"`
}

// Handler processes a single event. The raw payload is the JSON-encoded
// value passed to Publish. Returned errors are reported to the bus's error
// observer; they are never propagated to the publisher.
type Handler func(ctx context.Context, data json.RawMessage) error

// ErrorObserver receives handler and transport failures for out-of-band
// alerting. It must be safe for concurrent use.
type ErrorObserver func(event string, err error)

// Transport forwards envelopes between nodes. Implementations are
// best-effort: delivery is at-most-once per node and unordered.
type Transport interface {
	// Publish forwards the envelope to all other nodes.
	Publish(ctx context.Context, env Envelope) error

	// Receive returns a channel of inbound envelopes. The channel is closed
	// when the context is cancelled or the transport is closed.
	Receive(ctx context.Context) (<-chan Envelope, error)

	// Close releases transport resources.
	Close() error
}

// Bus dispatches events to local subscribers and relays them across nodes
// through its Transport. All methods are safe for concurrent use.
type Bus struct {
	transport Transport
	nodeID    string
	logger    *slog.Logger
	observer  ErrorObserver

	mu       sync.RWMutex
	handlers map[string]map[*Subscription]Handler
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Subscription represents a registered handler. Unsubscribe is idempotent.
type Subscription struct {
	bus   *Bus
	event string
	once  sync.Once
}

// Event returns the event name the subscription is bound to.
func (s *Subscription) Event() string {
	return s.event
}

// Unsubscribe removes the handler from the bus. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		if set, ok := s.bus.handlers[s.event]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.handlers, s.event)
			}
		}
	})
}

// New creates a Bus. Without options it runs in single-node mode with a
// NoopTransport and a random node id.
func New(opts ...Option) *Bus {
	options := &busOptions{
		transport: NewNoopTransport(),
		nodeID:    uuid.New().String(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		transport: options.transport,
		nodeID:    options.nodeID,
		logger:    options.logger,
		observer:  options.observer,
		handlers:  make(map[string]map[*Subscription]Handler),
		ctx:       ctx,
		cancel:    cancel,
	}

	b.wg.Add(1)
	go b.receiveLoop()

	return b
}

// NodeID returns the identifier stamped on every envelope this bus publishes.
func (b *Bus) NodeID() string {
	return b.nodeID
}

// Publish delivers the payload to all local subscribers of event
// asynchronously and forwards it to the transport. The only error a caller
// can see is a serialization failure of its own payload; handler and
// transport failures are isolated and reported out-of-band.
func (b *Bus) Publish(ctx context.Context, event string, payload any) error {
	if event == "" {
		return ErrEmptyEventName
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Join(ErrMarshalPayload, err)
	}

	b.dispatch(event, data)

	env := Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
		NodeID:    b.nodeID,
	}

	// Local delivery must keep working when cross-node fan-out is degraded,
	// so a transport failure is logged instead of returned.
	if err := b.transport.Publish(ctx, env); err != nil {
		b.logger.Warn("event forwarded locally only, transport publish failed",
			slog.String("event", event),
			slog.String("node_id", b.nodeID),
			slog.String("error", err.Error()))
		b.observe(event, err)
	}

	return nil
}

// Subscribe registers a handler for event. The same handler function can be
// registered multiple times; each call returns an independent Subscription.
func (b *Bus) Subscribe(event string, h Handler) *Subscription {
	sub := &Subscription{bus: b, event: event}
	if event == "" || h == nil {
		// Inert subscription keeps the caller's defer sub.Unsubscribe() safe.
		return sub
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return sub
	}

	set, ok := b.handlers[event]
	if !ok {
		set = make(map[*Subscription]Handler)
		b.handlers[event] = set
	}
	set[sub] = h

	return sub
}

// Close stops the inbound loop, closes the transport, and waits for
// in-flight handlers to finish. Safe to call multiple times.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	err := b.transport.Close()
	b.wg.Wait()

	return err
}

// dispatch runs every handler registered for event in its own goroutine.
// Each handler is isolated: panics are recovered and, like errors, reported
// to the observer without affecting other handlers.
func (b *Bus) dispatch(event string, data json.RawMessage) {
	// The closed re-check and wg.Add happen under the same lock Close takes
	// to flip closed, so no goroutine is added once wg.Wait has started.
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	set := b.handlers[event]
	snapshot := make([]Handler, 0, len(set))
	for _, h := range set {
		snapshot = append(snapshot, h)
	}
	b.wg.Add(len(snapshot))
	b.mu.RUnlock()

	for _, h := range snapshot {
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.handlerFailed(event, fmt.Errorf("panic in event handler: %v", r))
				}
			}()

			if err := h(b.ctx, data); err != nil {
				b.handlerFailed(event, err)
			}
		}(h)
	}
}

func (b *Bus) handlerFailed(event string, err error) {
	b.logger.Error("event handler failed",
		slog.String("event", event),
		slog.String("node_id", b.nodeID),
		slog.String("error", err.Error()))
	b.observe(event, err)
}

func (b *Bus) observe(event string, err error) {
	if b.observer != nil {
		b.observer(event, err)
	}
}

// receiveLoop consumes envelopes from the transport and re-dispatches them
// to local handlers. Self-originated envelopes are dropped: this node's
// handlers already ran when the event was published.
func (b *Bus) receiveLoop() {
	defer b.wg.Done()

	ch, err := b.transport.Receive(b.ctx)
	if err != nil {
		b.logger.Warn("cross-node receive unavailable, running in single-node mode",
			slog.String("node_id", b.nodeID),
			slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-b.ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if env.NodeID == b.nodeID {
				continue
			}
			b.dispatch(env.Event, env.Data)
		}
	}
}
