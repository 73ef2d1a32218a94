package sender_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/sender"
)

func TestNewDevSenderValidation(t *testing.T) {
	t.Parallel()

	_, err := sender.NewDevSender(sender.Channel("bogus"), t.TempDir())
	assert.ErrorIs(t, err, sender.ErrUnknownChannel)

	_, err = sender.NewDevSender(sender.ChannelEmail, "")
	assert.ErrorIs(t, err, sender.ErrInvalidConfig)
}

func TestDevSenderSend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := sender.NewDevSender(sender.ChannelEmail, dir)
	require.NoError(t, err)

	res := s.Send(context.Background(), sender.ProcessedNotification{
		ID:             "p-1",
		NotificationID: "n-1",
		UserID:         "u-1",
		Channel:        sender.ChannelEmail,
		Recipient:      sender.Recipient{Email: "user@example.com"},
		Subject:        "Welcome Aboard!",
		Content:        "<p>Hello</p>",
		Metadata:       map[string]string{"tag": "onboarding"},
	})

	require.True(t, res.Success, res.Err)
	assert.Equal(t, "dev", res.Provider)
	require.NotEmpty(t, res.MessageID)

	data, err := os.ReadFile(filepath.Join(dir, res.MessageID+".json"))
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "n-1", record["notification_id"])
	assert.Equal(t, "u-1", record["user_id"])
	assert.Equal(t, "email", record["channel"])
	assert.Equal(t, "Welcome Aboard!", record["subject"])
	assert.Equal(t, "<p>Hello</p>", record["content"])

	state, err := s.DeliveryStatus(context.Background(), res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, sender.StateDelivered, state)
}

func TestDevSenderDeliveryStatusMissingFile(t *testing.T) {
	t.Parallel()

	s, err := sender.NewDevSender(sender.ChannelSMS, t.TempDir())
	require.NoError(t, err)

	state, err := s.DeliveryStatus(context.Background(), "never-sent")
	assert.Error(t, err)
	assert.Equal(t, sender.StateFailed, state)
}

func TestDevSenderCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "outbox", "nested")
	s, err := sender.NewDevSender(sender.ChannelPush, dir)
	require.NoError(t, err)

	res := s.Send(context.Background(), sender.ProcessedNotification{
		NotificationID: "n-2",
		Recipient:      sender.Recipient{DeviceToken: "tok"},
		Content:        "ping",
	})

	require.True(t, res.Success, res.Err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
