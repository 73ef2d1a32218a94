package sender_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/sender"
)

func TestNewEmailSenderValidation(t *testing.T) {
	t.Parallel()

	valid := sender.EmailConfig{
		ServerToken:  "server-token",
		AccountToken: "account-token",
		SenderEmail:  "noreply@example.com",
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		s, err := sender.NewEmailSender(valid)
		require.NoError(t, err)
		assert.Equal(t, sender.ChannelEmail, s.Channel())
		assert.Equal(t, "postmark", s.Name())
	})

	t.Run("missing server token", func(t *testing.T) {
		t.Parallel()

		cfg := valid
		cfg.ServerToken = ""
		_, err := sender.NewEmailSender(cfg)
		assert.ErrorIs(t, err, sender.ErrInvalidConfig)
	})

	t.Run("missing account token", func(t *testing.T) {
		t.Parallel()

		cfg := valid
		cfg.AccountToken = ""
		_, err := sender.NewEmailSender(cfg)
		assert.ErrorIs(t, err, sender.ErrInvalidConfig)
	})

	t.Run("invalid sender email", func(t *testing.T) {
		t.Parallel()

		cfg := valid
		cfg.SenderEmail = "not-an-email"
		_, err := sender.NewEmailSender(cfg)
		assert.ErrorIs(t, err, sender.ErrInvalidConfig)
	})
}
