package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/eventbus"
)

// fakeTransport records published envelopes and lets tests inject inbound
// ones, including self-originated envelopes for dedup checks.
type fakeTransport struct {
	mu        sync.Mutex
	published []eventbus.Envelope
	inbound   chan eventbus.Envelope
	failPub   error
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan eventbus.Envelope, 16)}
}

func (t *fakeTransport) Publish(ctx context.Context, env eventbus.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failPub != nil {
		return t.failPub
	}
	t.published = append(t.published, env)
	return nil
}

func (t *fakeTransport) Receive(ctx context.Context) (<-chan eventbus.Envelope, error) {
	return t.inbound, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbound)
	}
	return nil
}

func (t *fakeTransport) publishedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.published)
}

type statusPayload struct {
	NotificationID string `json:"notification_id"`
}

func TestBus_PublishDeliversLocally(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	defer bus.Close()

	received := make(chan statusPayload, 1)
	sub := bus.Subscribe("notification.sent", func(ctx context.Context, data json.RawMessage) error {
		var p statusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		received <- p
		return nil
	})
	defer sub.Unsubscribe()

	err := bus.Publish(context.Background(), "notification.sent", statusPayload{NotificationID: "n-1"})
	require.NoError(t, err)

	select {
	case p := <-received:
		assert.Equal(t, "n-1", p.NotificationID)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestBus_PublishForwardsToTransport(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	bus := eventbus.New(
		eventbus.WithTransport(transport),
		eventbus.WithNodeID("node-a"),
	)
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), "notification.requested", statusPayload{NotificationID: "n-2"}))

	require.Eventually(t, func() bool {
		return transport.publishedCount() == 1
	}, time.Second, 10*time.Millisecond)

	transport.mu.Lock()
	env := transport.published[0]
	transport.mu.Unlock()

	assert.Equal(t, "notification.requested", env.Event)
	assert.Equal(t, "node-a", env.NodeID)
	assert.False(t, env.Timestamp.IsZero())
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	var observed atomic.Int32
	bus := eventbus.New(eventbus.WithErrorObserver(func(event string, err error) {
		observed.Add(1)
	}))
	defer bus.Close()

	healthy := make(chan struct{}, 1)
	bus.Subscribe("notification.failed", func(ctx context.Context, data json.RawMessage) error {
		return errors.New("handler error")
	})
	bus.Subscribe("notification.failed", func(ctx context.Context, data json.RawMessage) error {
		panic("handler panic")
	})
	bus.Subscribe("notification.failed", func(ctx context.Context, data json.RawMessage) error {
		healthy <- struct{}{}
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), "notification.failed", nil))

	select {
	case <-healthy:
	case <-time.After(time.Second):
		t.Fatal("healthy handler was not invoked")
	}

	require.Eventually(t, func() bool {
		return observed.Load() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestBus_DegradedTransportKeepsLocalDelivery(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.failPub = errors.New("redis unavailable")

	bus := eventbus.New(eventbus.WithTransport(transport))
	defer bus.Close()

	received := make(chan struct{}, 1)
	bus.Subscribe("notification.sent", func(ctx context.Context, data json.RawMessage) error {
		received <- struct{}{}
		return nil
	})

	// Publish must not fail the caller when cross-node fan-out is down.
	require.NoError(t, bus.Publish(context.Background(), "notification.sent", nil))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("local delivery broke while transport was degraded")
	}
}

func TestBus_OriginDedup(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	bus := eventbus.New(
		eventbus.WithTransport(transport),
		eventbus.WithNodeID("node-a"),
	)
	defer bus.Close()

	var calls atomic.Int32
	bus.Subscribe("notification.sent", func(ctx context.Context, data json.RawMessage) error {
		calls.Add(1)
		return nil
	})

	// Self-originated envelope must be dropped, remote one dispatched.
	transport.inbound <- eventbus.Envelope{Event: "notification.sent", NodeID: "node-a", Data: json.RawMessage(`{}`)}
	transport.inbound <- eventbus.Envelope{Event: "notification.sent", NodeID: "node-b", Data: json.RawMessage(`{}`)}

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// Give the self-originated envelope a chance to slip through before
	// asserting it never did.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	defer bus.Close()

	var calls atomic.Int32
	sub := bus.Subscribe("notification.sent", func(ctx context.Context, data json.RawMessage) error {
		calls.Add(1)
		return nil
	})

	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), "notification.sent", nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBus_PublishValidation(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	defer bus.Close()

	err := bus.Publish(context.Background(), "", nil)
	assert.ErrorIs(t, err, eventbus.ErrEmptyEventName)

	err = bus.Publish(context.Background(), "notification.sent", func() {})
	assert.ErrorIs(t, err, eventbus.ErrMarshalPayload)
}

func TestBus_ClosedBusRejectsPublish(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), "notification.sent", nil)
	assert.ErrorIs(t, err, eventbus.ErrBusClosed)
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := eventbus.New()

	var delivered atomic.Int64
	bus.Subscribe("order.created", func(ctx context.Context, data json.RawMessage) error {
		delivered.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				if err := bus.Publish(ctx, "order.created", "payload"); err != nil {
					assert.ErrorIs(t, err, eventbus.ErrBusClosed)
					return
				}
			}
		}()
	}

	close(start)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, bus.Close())
	wg.Wait()

	assert.Positive(t, delivered.Load())
}
