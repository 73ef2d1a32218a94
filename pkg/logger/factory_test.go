package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/logger"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf))

	log.Info("hello")
	log.Debug("filtered")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestWithProduction(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithProduction("notify"), logger.WithOutput(&buf))

	log.Info("boot")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "notify", rec["service"])
	assert.Equal(t, "production", rec["env"])
}

func TestWithDevelopmentTextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithDevelopment("notify"), logger.WithOutput(&buf))

	log.Debug("verbose")

	out := buf.String()
	assert.Contains(t, out, "verbose")
	assert.Contains(t, out, "service=notify")
	assert.Contains(t, out, "env=development")
}

func TestWithFormatPanicsOnInvalid(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		logger.New(logger.WithFormat("xml"))
	})
}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	type ctxKey struct{}

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithContextExtractors(nil, func(ctx context.Context) (slog.Attr, bool) {
			if v, ok := ctx.Value(ctxKey{}).(string); ok {
				return slog.String("notification_id", v), true
			}
			return slog.Attr{}, false
		}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "n-42")
	log.InfoContext(ctx, "processed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "n-42", rec["notification_id"])
}

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)
	assert.Equal(t, slog.Attr{}, logger.NotificationID(nil))
	assert.Equal(t, "notification_id", logger.NotificationID("n-1").Key)
	assert.Equal(t, "channel", logger.Channel("email").Key)
	assert.Equal(t, "queue", logger.Queue("notifications").Key)
	assert.Equal(t, slog.Attr{}, logger.Errors(nil, nil))
	assert.Equal(t, "errors", logger.Errors(errors.New("a"), nil, errors.New("b")).Key)
}
