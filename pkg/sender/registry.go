package sender

import (
	"fmt"
	"sync"
)

// Registry holds one Sender per channel for orchestrator lookup.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	senders map[Channel]Sender
}

// NewRegistry creates a registry, validating and registering the given
// senders. A sender with invalid configuration fails registration.
func NewRegistry(senders ...Sender) (*Registry, error) {
	r := &Registry{senders: make(map[Channel]Sender)}
	for _, s := range senders {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a sender, replacing any previous sender for its channel.
func (r *Registry) Register(s Sender) error {
	if s == nil {
		return fmt.Errorf("%w: nil sender", ErrInvalidConfig)
	}
	if !s.Channel().Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidConfig, s.Channel())
	}
	if err := s.ValidateConfig(); err != nil {
		return fmt.Errorf("sender %q for channel %q: %w", s.Name(), s.Channel(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Channel()] = s

	return nil
}

// Get returns the sender for a channel.
func (r *Registry) Get(ch Channel) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return s, nil
}

// Channels returns the channels with a registered sender.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
