// Package eventbus provides in-process publish/subscribe with optional
// best-effort cross-node fan-out.
//
// A Bus dispatches every published event asynchronously to all local
// subscribers and forwards the same payload, wrapped in an Envelope stamped
// with the publishing node's id, to a pluggable Transport. Inbound envelopes
// that carry the bus's own node id are discarded, since local handlers
// already ran at publish time (origin dedup).
//
// Handler failures are isolated: a panicking or erroring handler never
// affects the publisher or other handlers. Failures are reported to an
// optional error observer and logged.
//
// Local delivery never depends on the transport. When the transport is
// unavailable the bus degrades to single-node operation and logs the
// forwarding failure instead of returning it to the publisher.
//
// Basic usage:
//
//	bus := eventbus.New(eventbus.WithTransport(transport))
//	defer bus.Close()
//
//	sub := bus.Subscribe("notification.sent", func(ctx context.Context, data json.RawMessage) error {
//		// react to the event
//		return nil
//	})
//	defer sub.Unsubscribe()
//
//	_ = bus.Publish(ctx, "notification.sent", payload)
package eventbus
