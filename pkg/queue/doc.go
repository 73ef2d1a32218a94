// Package queue provides a storage-agnostic, durable job queue with
// priorities, delayed execution, per-job retry backoff, and dead-lettering.
//
// The package is organised around two components:
//
//   - Enqueuer adds jobs to a named queue
//   - Worker claims ready jobs and dispatches them to registered Handlers
//
// Components interact only through small repository interfaces, keeping the
// queue logic decoupled from persistence. Two implementations ship with the
// package: MemoryStorage for tests and single-process deployments, and
// PostgresStorage for durable multi-node operation.
//
// Delivery is at-least-once: a job whose handler returns an error is retried
// according to its BackoffPolicy until MaxRetries is exhausted, then moved to
// the dead letter queue and reported to the worker's failure observer. A
// handler can short-circuit retries by wrapping its error with ErrPermanent.
//
// Claiming a job is a single conditional update in the storage layer, so two
// workers can never process the same job concurrently.
//
// Basic usage:
//
//	store := queue.NewMemoryStorage()
//	defer store.Close()
//
//	enq, _ := queue.NewEnqueuer(store)
//	_, _ = enq.Enqueue(ctx, DeliverPayload{NotificationID: id},
//		queue.WithQueue("notifications"),
//		queue.WithPriority(queue.PriorityHigh),
//		queue.WithDelay(30*time.Second),
//	)
//
//	w, _ := queue.NewWorker(store, queue.WithQueues("notifications"))
//	_ = w.RegisterHandler(queue.NewJobHandler(func(ctx context.Context, p DeliverPayload) error {
//		return deliver(ctx, p.NotificationID)
//	}))
//	_ = w.Start(ctx)
package queue
