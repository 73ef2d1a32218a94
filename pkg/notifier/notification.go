package notifier

import (
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notify/pkg/queue"
	"github.com/notifykit/notify/pkg/sender"
)

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// Sent is not terminal: provider confirmation can still advance it to
// delivered.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Priority orders delivery and sets the advisory delivery estimate.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether the priority is one of the supported values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// EstimateDelay returns the advisory delivery estimate for the priority.
// It is a hint for callers, not a scheduling contract the queue enforces.
func (p Priority) EstimateDelay() time.Duration {
	switch p {
	case PriorityUrgent:
		return time.Minute
	case PriorityHigh:
		return 5 * time.Minute
	case PriorityLow:
		return 60 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// QueuePriority maps the notification priority onto the job queue's
// numeric scale.
func (p Priority) QueuePriority() queue.Priority {
	switch p {
	case PriorityUrgent:
		return 95
	case PriorityHigh:
		return queue.PriorityHigh
	case PriorityLow:
		return queue.PriorityLow
	default:
		return queue.PriorityMedium
	}
}

// Notification is the persisted delivery record. It is owned by the
// orchestrator and mutated only through guarded status transitions; it is
// never deleted, only driven to a terminal status.
type Notification struct {
	ID          uuid.UUID         `json:"id"`
	UserID      string            `json:"user_id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	TemplateID  string            `json:"template_id,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
	Channels    []sender.Channel  `json:"channels"`
	Priority    Priority          `json:"priority"`
	Status      Status            `json:"status"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	SentAt      *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	FailedAt    *time.Time        `json:"failed_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
