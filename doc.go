// Package notify is a notification delivery toolkit for Go services.
//
// The module is organized as independent packages under pkg/ that compose
// into a delivery pipeline:
//
//   - pkg/notifier orchestrates notification lifecycle: validation, channel
//     selection against user preferences, template rendering, concurrent
//     fan-out across channels, and retry bookkeeping.
//   - pkg/queue provides durable background job processing with priorities,
//     scheduled execution, configurable backoff, and dead-lettering.
//   - pkg/eventbus provides local pub/sub with optional cross-node
//     broadcasting over Redis.
//   - pkg/presence tracks user connections and routes realtime payloads to
//     them, across nodes when a bus is attached.
//   - pkg/sender defines the delivery channel contract and ships email
//     (Postmark), SMS/push gateway, and filesystem dev implementations.
//
// Supporting packages (pkg/logger, pkg/config, pkg/redis, pkg/pg) cover
// structured logging, environment configuration, and connection management.
//
// Each package is usable on its own; pkg/notifier wires them together when
// a full pipeline is needed.
package notify
