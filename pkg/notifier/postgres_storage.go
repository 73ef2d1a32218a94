package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"

	"github.com/notifykit/notify/pkg/sender"
)

// PostgresStorage implements Storage on top of a pgx connection pool. The
// schema lives in the notifications table (see the migration shipped with
// pkg/pg).
//
// UpdateStatusIf is a single conditional UPDATE guarded by the expected
// status, so the transition doubles as the cross-worker soft lock. All
// statements are fully parameterized.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a Postgres-backed notification storage.
func NewPostgresStorage(pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, ErrStorageNil
	}
	return &PostgresStorage{pool: pool}, nil
}

const notificationColumns = `id, user_id, type, title, content, template_id, data, channels,
	priority, status, attempts, max_attempts, scheduled_at, sent_at, delivered_at, failed_at,
	metadata, created_at, updated_at`

// Create implements Storage.
func (s *PostgresStorage) Create(ctx context.Context, n *Notification) error {
	if n == nil {
		return errors.New("notification cannot be nil")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, content, template_id, data, channels,
			priority, status, attempts, max_attempts, scheduled_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		n.ID, n.UserID, n.Type, n.Title, n.Content, nullableString(n.TemplateID), n.Data,
		channelStrings(n.Channels), n.Priority, n.Status, n.Attempts, n.MaxAttempts,
		n.ScheduledAt, n.Metadata, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}

	return nil
}

// Get implements Storage.
func (s *PostgresStorage) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1`, id)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	return n, nil
}

// ListByUser implements Storage.
func (s *PostgresStorage) ListByUser(ctx context.Context, userID string, offset, limit int) ([]Notification, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications for user %s: %w", userID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications for user %s: %w", userID, err)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read notifications: %w", err)
	}

	return items, total, nil
}

// UpdateStatusIf implements Storage. The WHERE clause on the current status
// makes the swap atomic; a zero row count means another worker already
// moved the record.
func (s *PostgresStorage) UpdateStatusIf(ctx context.Context, id uuid.UUID, expect, next Status) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET
			status = $1,
			sent_at = CASE WHEN $1 = 'sent' THEN now() ELSE sent_at END,
			delivered_at = CASE WHEN $1 = 'delivered' THEN now() ELSE delivered_at END,
			failed_at = CASE WHEN $1 = 'failed' THEN now() ELSE failed_at END,
			updated_at = now()
		WHERE id = $2 AND status = $3`,
		next, id, expect)
	if err != nil {
		return false, fmt.Errorf("failed to transition notification %s to %s: %w", id, next, err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing record.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check notification %s: %w", id, err)
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}

	return true, nil
}

// IncrementAttempts implements Storage.
func (s *PostgresStorage) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE notifications SET
			attempts = attempts + 1,
			updated_at = now()
		WHERE id = $1
		RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment attempts for notification %s: %w", id, err)
	}

	return attempts, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n          Notification
		templateID *string
		channels   []string
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Content, &templateID, &n.Data,
		&channels, &n.Priority, &n.Status, &n.Attempts, &n.MaxAttempts, &n.ScheduledAt,
		&n.SentAt, &n.DeliveredAt, &n.FailedAt, &n.Metadata, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if templateID != nil {
		n.TemplateID = *templateID
	}
	n.Channels = parseChannels(channels)

	return &n, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func channelStrings(channels []sender.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = string(ch)
	}
	return out
}

func parseChannels(channels []string) []sender.Channel {
	out := make([]sender.Channel, len(channels))
	for i, ch := range channels {
		out[i] = sender.Channel(ch)
	}
	return out
}
