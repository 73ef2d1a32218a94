package notifier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notify/pkg/notifier"
)

func TestStaticRenderer(t *testing.T) {
	t.Parallel()

	t.Run("renders subject and body", func(t *testing.T) {
		t.Parallel()

		r := notifier.NewStaticRenderer()
		require.NoError(t, r.RegisterTemplate("welcome",
			"Welcome, {{.name}}!",
			"Hi {{.name}}, your account on {{.product}} is ready."))

		out, err := r.Render(context.Background(), "welcome", map[string]any{
			"name":    "Ada",
			"product": "notify",
		})
		require.NoError(t, err)
		assert.Equal(t, "Welcome, Ada!", out.Subject)
		assert.Equal(t, "Hi Ada, your account on notify is ready.", out.Content)
	})

	t.Run("missing variables listed by name", func(t *testing.T) {
		t.Parallel()

		r := notifier.NewStaticRenderer()
		require.NoError(t, r.RegisterTemplate("welcome",
			"Welcome, {{.name}}!",
			"Your plan: {{.plan}}"))

		_, err := r.Render(context.Background(), "welcome", map[string]any{"name": "Ada"})

		var missing *notifier.MissingVariablesError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "welcome", missing.Template)
		assert.Equal(t, []string{"plan"}, missing.Variables)
	})

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()

		r := notifier.NewStaticRenderer()
		_, err := r.Render(context.Background(), "nope", nil)

		var notFound *notifier.ErrTemplateNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "nope", notFound.Template)
	})

	t.Run("invalid template rejected at registration", func(t *testing.T) {
		t.Parallel()

		r := notifier.NewStaticRenderer()
		assert.Error(t, r.RegisterTemplate("broken", "{{.name", "body"))
		assert.Error(t, r.RegisterTemplate("", "s", "b"))
	})

	t.Run("registration replaces previous template", func(t *testing.T) {
		t.Parallel()

		r := notifier.NewStaticRenderer()
		require.NoError(t, r.RegisterTemplate("greet", "v1", "old"))
		require.NoError(t, r.RegisterTemplate("greet", "v2", "new"))

		out, err := r.Render(context.Background(), "greet", nil)
		require.NoError(t, err)
		assert.Equal(t, "v2", out.Subject)
		assert.Equal(t, "new", out.Content)
	})
}
