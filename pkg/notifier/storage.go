package notifier

import (
	"context"

	"github.com/google/uuid"
)

// Storage persists notification records. Status changes go through
// UpdateStatusIf, a compare-and-set that doubles as the soft lock keeping
// two workers from processing the same record. Implementations return
// ErrNotFound for unknown IDs and stamp the transition timestamp fields
// (sent_at, delivered_at, failed_at) plus updated_at on every change.
type Storage interface {
	// Create persists a new record.
	Create(ctx context.Context, n *Notification) error

	// Get returns the record by ID.
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)

	// ListByUser returns the user's records ordered by creation time
	// descending, plus the total count for pagination.
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]Notification, int, error)

	// UpdateStatusIf transitions status from expect to next in one atomic
	// step. It reports false, without error, when the current status is not
	// expect.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expect, next Status) (bool, error)

	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
}
