package notifier

import (
	"context"

	"github.com/notifykit/notify/pkg/sender"
)

// Preferences is a user's per-channel opt-in state. A channel missing from
// the map is treated as enabled, matching "opt out" semantics.
type Preferences struct {
	Channels map[sender.Channel]bool `json:"channels,omitempty"`
}

// Enabled reports whether the user accepts delivery on the channel.
func (p Preferences) Enabled(ch sender.Channel) bool {
	if p.Channels == nil {
		return true
	}
	enabled, ok := p.Channels[ch]
	if !ok {
		return true
	}
	return enabled
}

// User is the directory view the orchestrator needs: addressing, activity
// and channel preferences.
type User struct {
	ID          string      `json:"id"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	DeviceToken string      `json:"device_token,omitempty"`
	IsActive    bool        `json:"is_active"`
	Preferences Preferences `json:"preferences"`
}

// Recipient builds the per-channel addressing for the user.
func (u User) Recipient() sender.Recipient {
	return sender.Recipient{
		Email:       u.Email,
		Phone:       u.Phone,
		DeviceToken: u.DeviceToken,
	}
}

// UserDirectory resolves users at send and processing time. Implementations
// return ErrUserNotFound for unknown IDs.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*User, error)
}
