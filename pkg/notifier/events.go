package notifier

// Bus events published by the orchestrator. Requested drives the pipeline;
// the status events exist for realtime relays and out-of-band observers.
const (
	EventRequested = "notification.requested"
	EventSent      = "notification.sent"
	EventDelivered = "notification.delivered"
	EventFailed    = "notification.failed"
)

// RequestedEvent is the payload of EventRequested.
type RequestedEvent struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
}

// StatusEvent is the payload of the sent, delivered and failed events.
type StatusEvent struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Status         Status `json:"status"`
	Error          string `json:"error,omitempty"`
}
