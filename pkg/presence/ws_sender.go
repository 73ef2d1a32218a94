package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notifykit/notify/pkg/sender"
)

// WSEventNotification is the connection event carrying a pushed
// notification.
const WSEventNotification = "notification"

// WSSender delivers the websocket channel through the presence registry.
// With a bus-attached registry the push reaches the user's connections on
// every node. An offline user is a successful send with no receivers; the
// realtime channel is best-effort by nature and the record remains the
// source of truth.
type WSSender struct {
	registry *Registry
}

// NewWSSender creates a websocket channel sender on top of the registry.
func NewWSSender(registry *Registry) (*WSSender, error) {
	s := &WSSender{registry: registry}
	if err := s.ValidateConfig(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WSSender) Channel() sender.Channel { return sender.ChannelWebSocket }
func (s *WSSender) Name() string            { return "presence" }

// ValidateConfig implements sender.Sender.
func (s *WSSender) ValidateConfig() error {
	if s.registry == nil {
		return fmt.Errorf("%w: presence registry is required", sender.ErrInvalidConfig)
	}
	return nil
}

// Send implements sender.Sender.
func (s *WSSender) Send(ctx context.Context, notif sender.ProcessedNotification) sender.Result {
	payload, err := json.Marshal(notif)
	if err != nil {
		return sender.Failed(s.Name(), fmt.Errorf("encode notification: %w", err))
	}

	if err := s.registry.PublishToUser(ctx, notif.UserID, WSEventNotification, payload); err != nil {
		return sender.Failed(s.Name(), err)
	}

	return sender.OK(s.Name(), notif.NotificationID)
}

// DeliveryStatus implements sender.Sender. A websocket push has no
// provider-side confirmation to poll.
func (s *WSSender) DeliveryStatus(ctx context.Context, messageID string) (sender.DeliveryState, error) {
	return sender.StateSent, nil
}
