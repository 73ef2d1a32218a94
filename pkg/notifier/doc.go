// Package notifier orchestrates notification delivery across channels.
//
// A notification moves through a small state machine: PENDING when accepted,
// PROCESSING while a worker owns it, then SENT or FAILED, with SENT able to
// advance to DELIVERED on provider confirmation and PENDING able to be
// CANCELLED. Transitions are conditional updates against the store, so two
// workers can never own the same record at once.
//
// Delivery is decoupled from acceptance. Send persists a PENDING record and
// publishes a requested event; the event handler claims the record and
// enqueues a delivery job; a queue worker renders the content and fans out
// concurrently to every channel's sender. One successful channel makes the
// notification SENT even when others fail; only a full sweep of failures
// makes it FAILED. Unexpected processing errors consume an attempt and are
// retried by the queue until the attempt budget runs out.
package notifier
