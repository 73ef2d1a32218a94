package notifier_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/notifier"
	"github.com/notifykit/notify/pkg/sender"
)

func newRecord(userID string, createdAt time.Time) *notifier.Notification {
	return &notifier.Notification{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        "system",
		Title:       "hello",
		Content:     "body",
		Channels:    []sender.Channel{sender.ChannelEmail},
		Priority:    notifier.PriorityMedium,
		Status:      notifier.StatusPending,
		MaxAttempts: 3,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestMemoryStorageCreateGet(t *testing.T) {
	t.Parallel()

	ms := notifier.NewMemoryStorage()
	ctx := context.Background()

	n := newRecord("user-1", time.Now().UTC())
	require.NoError(t, ms.Create(ctx, n))

	got, err := ms.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, notifier.StatusPending, got.Status)

	// Reads return copies.
	got.Status = notifier.StatusFailed
	again, err := ms.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifier.StatusPending, again.Status)

	_, err = ms.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, notifier.ErrNotFound)
}

func TestMemoryStorageListByUser(t *testing.T) {
	t.Parallel()

	ms := notifier.NewMemoryStorage()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		n := newRecord("user-1", base.Add(time.Duration(i)*time.Minute))
		n.Title = fmt.Sprintf("record-%d", i)
		require.NoError(t, ms.Create(ctx, n))
	}
	require.NoError(t, ms.Create(ctx, newRecord("user-2", base)))

	items, total, err := ms.ListByUser(ctx, "user-1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, "record-4", items[0].Title)
	assert.Equal(t, "record-3", items[1].Title)

	items, total, err = ms.ListByUser(ctx, "user-1", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 1)
	assert.Equal(t, "record-0", items[0].Title)

	items, total, err = ms.ListByUser(ctx, "user-1", 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, items)

	items, total, err = ms.ListByUser(ctx, "nobody", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}

func TestMemoryStorageUpdateStatusIf(t *testing.T) {
	t.Parallel()

	ms := notifier.NewMemoryStorage()
	ctx := context.Background()

	n := newRecord("user-1", time.Now().UTC())
	require.NoError(t, ms.Create(ctx, n))

	ok, err := ms.UpdateStatusIf(ctx, n.ID, notifier.StatusPending, notifier.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	// Lost race: the record is no longer pending.
	ok, err = ms.UpdateStatusIf(ctx, n.ID, notifier.StatusPending, notifier.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ms.UpdateStatusIf(ctx, n.ID, notifier.StatusProcessing, notifier.StatusSent)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := ms.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifier.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Nil(t, got.FailedAt)

	_, err = ms.UpdateStatusIf(ctx, uuid.New(), notifier.StatusPending, notifier.StatusCancelled)
	assert.ErrorIs(t, err, notifier.ErrNotFound)
}

func TestMemoryStorageIncrementAttempts(t *testing.T) {
	t.Parallel()

	ms := notifier.NewMemoryStorage()
	ctx := context.Background()

	n := newRecord("user-1", time.Now().UTC())
	require.NoError(t, ms.Create(ctx, n))

	attempts, err := ms.IncrementAttempts(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	attempts, err = ms.IncrementAttempts(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	got, err := ms.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)

	_, err = ms.IncrementAttempts(ctx, uuid.New())
	assert.ErrorIs(t, err, notifier.ErrNotFound)
}
