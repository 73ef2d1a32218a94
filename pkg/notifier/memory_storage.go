package notifier

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-memory Storage for tests and single-process use.
type MemoryStorage struct {
	mu     sync.RWMutex
	items  map[uuid.UUID]*Notification
	byUser map[string][]uuid.UUID
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items:  make(map[uuid.UUID]*Notification),
		byUser: make(map[string][]uuid.UUID),
	}
}

// Create implements Storage.
func (ms *MemoryStorage) Create(ctx context.Context, n *Notification) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := cloneNotification(n)
	ms.items[n.ID] = stored
	ms.byUser[n.UserID] = append(ms.byUser[n.UserID], n.ID)

	return nil
}

// Get implements Storage.
func (ms *MemoryStorage) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	n, ok := ms.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

// ListByUser implements Storage. Records come back newest first.
func (ms *MemoryStorage) ListByUser(ctx context.Context, userID string, offset, limit int) ([]Notification, int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := ms.byUser[userID]
	all := make([]*Notification, 0, len(ids))
	for _, id := range ids {
		all = append(all, ms.items[id])
	}
	slices.SortFunc(all, func(a, b *Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []Notification{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	out := make([]Notification, 0, end-offset)
	for _, n := range all[offset:end] {
		out = append(out, *cloneNotification(n))
	}
	return out, total, nil
}

// UpdateStatusIf implements Storage.
func (ms *MemoryStorage) UpdateStatusIf(ctx context.Context, id uuid.UUID, expect, next Status) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, ok := ms.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if n.Status != expect {
		return false, nil
	}

	now := time.Now().UTC()
	n.Status = next
	n.UpdatedAt = now
	switch next {
	case StatusSent:
		n.SentAt = &now
	case StatusDelivered:
		n.DeliveredAt = &now
	case StatusFailed:
		n.FailedAt = &now
	}

	return true, nil
}

// IncrementAttempts implements Storage.
func (ms *MemoryStorage) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, ok := ms.items[id]
	if !ok {
		return 0, ErrNotFound
	}

	n.Attempts++
	n.UpdatedAt = time.Now().UTC()
	return n.Attempts, nil
}

func cloneNotification(n *Notification) *Notification {
	c := *n
	c.Channels = slices.Clone(n.Channels)
	c.Data = maps.Clone(n.Data)
	c.Metadata = maps.Clone(n.Metadata)
	if n.ScheduledAt != nil {
		t := *n.ScheduledAt
		c.ScheduledAt = &t
	}
	if n.SentAt != nil {
		t := *n.SentAt
		c.SentAt = &t
	}
	if n.DeliveredAt != nil {
		t := *n.DeliveredAt
		c.DeliveredAt = &t
	}
	if n.FailedAt != nil {
		t := *n.FailedAt
		c.FailedAt = &t
	}
	return &c
}
