package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/notifykit/notify/pkg/eventbus"
)

// EventDeliver is the bus event carrying a per-user payload across nodes.
const EventDeliver = "presence.deliver"

// Conn is a live client connection, typically a websocket.
// Send must be safe for concurrent use.
type Conn interface {
	// ID uniquely identifies the connection on this node.
	ID() string

	// Send pushes one event to the client. A returned error means the
	// connection is no longer usable and will be unbound.
	Send(event string, payload []byte) error
}

// Stats is a point-in-time snapshot of local presence.
type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// deliverPayload is the wire shape of EventDeliver.
type deliverPayload struct {
	UserID  string          `json:"user_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Registry tracks user connections on this node. All methods are safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	userConns map[string]map[string]Conn
	connUser  map[string]string
	closed    bool

	bus  *eventbus.Bus
	subs []*eventbus.Subscription
	log  *slog.Logger
}

// NewRegistry creates a presence registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		userConns: make(map[string]map[string]Conn),
		connUser:  make(map[string]string),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.bus != nil {
		r.subs = append(r.subs, r.bus.Subscribe(EventDeliver, r.handleDeliver))
	}

	return r
}

// Relay subscribes to bus events whose payload carries a user_id field and
// forwards each one to that user's local connections. It is how lifecycle
// status events reach subscribed clients without the publisher knowing
// about connections.
func (r *Registry) Relay(events ...string) error {
	if r.bus == nil {
		return ErrNoBus
	}

	for _, event := range events {
		event := event
		r.subs = append(r.subs, r.bus.Subscribe(event, func(ctx context.Context, data json.RawMessage) error {
			var owner struct {
				UserID string `json:"user_id"`
			}
			if err := json.Unmarshal(data, &owner); err != nil {
				return err
			}
			if owner.UserID == "" {
				return nil
			}

			_, err := r.SendToUser(owner.UserID, event, data)
			return err
		}))
	}

	return nil
}

// Bind registers a connection for a user. Rebinding an existing connection
// ID to a different user moves it.
func (r *Registry) Bind(userID string, conn Conn) error {
	if conn == nil {
		return ErrNilConn
	}
	if userID == "" {
		return ErrEmptyUserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	if prev, ok := r.connUser[conn.ID()]; ok && prev != userID {
		r.removeLocked(conn.ID())
	}

	conns, ok := r.userConns[userID]
	if !ok {
		conns = make(map[string]Conn)
		r.userConns[userID] = conns
	}
	conns[conn.ID()] = conn
	r.connUser[conn.ID()] = userID

	return nil
}

// Unbind removes a connection. Unknown IDs are ignored.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connID)
}

func (r *Registry) removeLocked(connID string) {
	userID, ok := r.connUser[connID]
	if !ok {
		return
	}
	delete(r.connUser, connID)

	conns := r.userConns[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.userConns, userID)
	}
}

// Online reports whether the user has at least one local connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID]) > 0
}

// Connections returns the user's local connections.
func (r *Registry) Connections(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.userConns[userID]))
	for _, c := range r.userConns[userID] {
		conns = append(conns, c)
	}
	return conns
}

// Stats returns local user and connection counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Users: len(r.userConns), Connections: len(r.connUser)}
}

// SendToUser delivers an event to all of the user's local connections and
// returns how many received it. A user with no connections is a no-op.
// Connections that fail to accept the event are unbound.
func (r *Registry) SendToUser(userID, event string, payload []byte) (int, error) {
	if event == "" {
		return 0, ErrEmptyEvent
	}

	conns := r.Connections(userID)
	delivered := 0
	for _, c := range conns {
		if err := c.Send(event, payload); err != nil {
			r.log.Warn("dropping dead connection",
				slog.String("conn_id", c.ID()),
				slog.String("user_id", userID),
				slog.Any("error", err))
			r.Unbind(c.ID())
			continue
		}
		delivered++
	}

	return delivered, nil
}

// PublishToUser delivers an event to the user's connections on every node.
// Without a bus it degrades to local-only delivery.
func (r *Registry) PublishToUser(ctx context.Context, userID, event string, payload []byte) error {
	if event == "" {
		return ErrEmptyEvent
	}
	if userID == "" {
		return ErrEmptyUserID
	}

	if r.bus == nil {
		_, err := r.SendToUser(userID, event, payload)
		return err
	}

	return r.bus.Publish(ctx, EventDeliver, deliverPayload{
		UserID:  userID,
		Event:   event,
		Payload: payload,
	})
}

// handleDeliver forwards bus deliver events to local connections.
func (r *Registry) handleDeliver(ctx context.Context, data json.RawMessage) error {
	var p deliverPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	_, err := r.SendToUser(p.UserID, p.Event, p.Payload)
	return err
}

// Close detaches the registry from the bus and drops all connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.userConns = make(map[string]map[string]Conn)
	r.connUser = make(map[string]string)
	r.mu.Unlock()

	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	return nil
}
