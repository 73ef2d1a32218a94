package eventbus

import (
	"context"
	"sync"
)

// NoopTransport is the single-node transport: publishes succeed without
// doing anything and no envelopes are ever received.
type NoopTransport struct {
	mu     sync.Mutex
	ch     chan Envelope
	closed bool
}

// NewNoopTransport creates a transport for single-node deployments.
func NewNoopTransport() *NoopTransport {
	return &NoopTransport{ch: make(chan Envelope)}
}

// Publish discards the envelope.
func (t *NoopTransport) Publish(ctx context.Context, env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	return nil
}

// Receive returns a channel that never delivers and is closed on Close.
func (t *NoopTransport) Receive(ctx context.Context) (<-chan Envelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	return t.ch, nil
}

// Close closes the receive channel. Safe to call multiple times.
func (t *NoopTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.ch)
	}
	return nil
}
