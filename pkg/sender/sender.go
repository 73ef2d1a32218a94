package sender

import (
	"context"
	"time"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelPush      Channel = "push"
	ChannelWebSocket Channel = "websocket"
)

// Valid reports whether the channel is one of the supported values.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebSocket:
		return true
	}
	return false
}

// DeliveryState is the provider-agnostic delivery status vocabulary.
// Provider-native statuses are mapped onto it by each Sender; unknown or
// intermediate provider states map to StateProcessing.
type DeliveryState string

const (
	StateProcessing DeliveryState = "processing"
	StateSent       DeliveryState = "sent"
	StateDelivered  DeliveryState = "delivered"
	StateFailed     DeliveryState = "failed"
)

// Recipient carries per-channel addressing for one delivery.
type Recipient struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DeviceToken string `json:"device_token,omitempty"`
}

// ProcessedNotification is a rendered, channel-ready message.
type ProcessedNotification struct {
	ID             string            `json:"id"`
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Channel        Channel           `json:"channel"`
	Recipient      Recipient         `json:"recipient"`
	Subject        string            `json:"subject"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Result is the outcome of one delivery attempt on one channel.
type Result struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Err       string    `json:"error,omitempty"`
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}

// OK builds a successful delivery result.
func OK(provider, messageID string) Result {
	return Result{
		Success:   true,
		MessageID: messageID,
		Provider:  provider,
		Timestamp: time.Now().UTC(),
	}
}

// Failed builds a failed delivery result. The error is carried as a value so
// provider-side failures never propagate as Go errors through the fan-out.
func Failed(provider string, err error) Result {
	r := Result{
		Provider:  provider,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Sender delivers notifications on a single channel.
type Sender interface {
	// Channel returns the delivery channel this sender serves.
	Channel() Channel

	// Name identifies the concrete provider, e.g. "postmark".
	Name() string

	// Send delivers one message. Provider-side failures are returned as
	// Result{Success: false}; Send must not panic for those.
	Send(ctx context.Context, notif ProcessedNotification) Result

	// ValidateConfig reports configuration problems. Called once at wiring
	// time; a sender with invalid config must not be registered.
	ValidateConfig() error

	// DeliveryStatus maps the provider's view of a sent message onto the
	// shared delivery vocabulary.
	DeliveryStatus(ctx context.Context, messageID string) (DeliveryState, error)
}
