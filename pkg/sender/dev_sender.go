package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender implements Sender for local development. It writes each
// notification to disk as a JSON file instead of calling a provider, so
// delivery can be inspected without external credentials.
type DevSender struct {
	channel Channel
	dir     string
}

// NewDevSender creates a development sender for the given channel that
// saves notifications to disk. The directory is created on first send.
func NewDevSender(channel Channel, dir string) (*DevSender, error) {
	s := &DevSender{channel: channel, dir: dir}
	if err := s.ValidateConfig(); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *DevSender) Channel() Channel { return d.channel }
func (d *DevSender) Name() string     { return "dev" }

// ValidateConfig implements Sender.
func (d *DevSender) ValidateConfig() error {
	if !d.channel.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, d.channel)
	}
	if d.dir == "" {
		return fmt.Errorf("%w: directory is required", ErrInvalidConfig)
	}
	return nil
}

// devRecord is the notification data saved to JSON.
type devRecord struct {
	Timestamp      string            `json:"timestamp"`
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Channel        string            `json:"channel"`
	Recipient      Recipient         `json:"recipient"`
	Subject        string            `json:"subject,omitempty"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Send writes the notification to the configured directory.
func (d *DevSender) Send(ctx context.Context, notif ProcessedNotification) Result {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return Failed(d.Name(), fmt.Errorf("create directory: %w", err))
	}

	now := time.Now()
	identifier := notif.Subject
	if identifier == "" {
		identifier = notif.NotificationID
	}
	baseFilename := fmt.Sprintf("%s_%s_%s", now.Format("2006_01_02_150405"), d.channel, sanitizeFilename(identifier))

	record := devRecord{
		Timestamp:      now.Format(time.RFC3339),
		NotificationID: notif.NotificationID,
		UserID:         notif.UserID,
		Channel:        string(d.channel),
		Recipient:      notif.Recipient,
		Subject:        notif.Subject,
		Content:        notif.Content,
		Metadata:       notif.Metadata,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return Failed(d.Name(), fmt.Errorf("marshal record: %w", err))
	}

	path := filepath.Join(d.dir, baseFilename+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Failed(d.Name(), fmt.Errorf("write file: %w", err))
	}

	return OK(d.Name(), baseFilename)
}

// DeliveryStatus implements Sender. Files on disk are considered delivered.
func (d *DevSender) DeliveryStatus(ctx context.Context, messageID string) (DeliveryState, error) {
	if _, err := os.Stat(filepath.Join(d.dir, messageID+".json")); err != nil {
		return StateFailed, err
	}
	return StateDelivered, nil
}

// sanitizeRegex matches characters that are not alphanumeric, dash, underscore, or dot
var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename converts a string into a safe filename.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "notification"
	}

	return strings.ToLower(s)
}
