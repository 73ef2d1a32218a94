package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notify/pkg/eventbus"
	"github.com/notifykit/notify/pkg/queue"
	"github.com/notifykit/notify/pkg/sender"
)

const (
	// DefaultQueue is the job queue notifications are delivered through.
	DefaultQueue = "notifications"

	// JobNameDeliver names the delivery job on the queue.
	JobNameDeliver = "notification.deliver"

	// DefaultMaxAttempts bounds processing retries per notification.
	DefaultMaxAttempts = 3

	// MaxAttemptsLimit caps the attempt budget a request can ask for. The
	// budget rides on the queue's retry count, so it cannot exceed what the
	// queue supports; a larger budget would strand the record in
	// processing once the queue dead-letters the job.
	MaxAttemptsLimit = int(queue.MaxRetriesLimit)
)

// SendRequest describes one notification to deliver.
type SendRequest struct {
	UserID      string            `json:"user_id"`
	Type        string            `json:"type,omitempty"`
	Title       string            `json:"title,omitempty"`
	Content     string            `json:"content,omitempty"`
	TemplateID  string            `json:"template_id,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
	Channels    []sender.Channel  `json:"channels"`
	Priority    Priority          `json:"priority,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	MaxAttempts int               `json:"max_attempts,omitempty"`
}

// Receipt is returned to the caller of Send. Delivery continues
// asynchronously; EstimatedDelivery is an advisory hint derived from the
// priority, not a queue guarantee.
type Receipt struct {
	ID                uuid.UUID `json:"id"`
	Status            Status    `json:"status"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}

// HistoryPage is one page of a user's notifications, newest first.
type HistoryPage struct {
	Items      []Notification `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
}

// DeliveryJob is the queue payload linking a job back to its record.
type DeliveryJob struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

// Service is the notification orchestrator. It accepts requests, persists
// records, and drives them through the state machine via the event bus and
// the job queue.
type Service struct {
	storage  Storage
	users    UserDirectory
	renderer TemplateRenderer
	senders  *sender.Registry
	bus      *eventbus.Bus
	enqueuer *queue.Enqueuer
	log      *slog.Logger

	queueName   string
	maxAttempts int
	backoff     queue.BackoffPolicy

	sub *eventbus.Subscription
}

// NewService creates the orchestrator. Without a bus the requested event is
// dispatched in-process; without an enqueuer delivery runs inline, which is
// the single-process test configuration.
func NewService(storage Storage, users UserDirectory, senders *sender.Registry, opts ...Option) (*Service, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if users == nil {
		return nil, ErrUserDirectoryNil
	}
	if senders == nil {
		return nil, ErrSendersNil
	}

	s := &Service{
		storage:     storage,
		users:       users,
		senders:     senders,
		log:         slog.Default(),
		queueName:   DefaultQueue,
		maxAttempts: DefaultMaxAttempts,
		backoff:     queue.DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.bus != nil {
		s.sub = s.bus.Subscribe(EventRequested, s.handleRequested)
	}

	return s, nil
}

// Close detaches the service from the event bus.
func (s *Service) Close() error {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	return nil
}

// DeliveryHandler returns the queue handler that processes delivery jobs.
// Register it on the worker that consumes the notification queue.
func (s *Service) DeliveryHandler() queue.Handler {
	return queue.NewNamedJobHandler(JobNameDeliver, func(ctx context.Context, job DeliveryJob) error {
		return s.process(ctx, job.NotificationID)
	})
}

// DeliveryFailureObserver returns a queue failure observer that settles a
// notification whose delivery job was dead-lettered. Register it on the
// worker alongside DeliveryHandler: it is the backstop that keeps the record
// from stranding in processing when the queue gives up on the job for
// reasons process never saw, such as a missing handler.
func (s *Service) DeliveryFailureObserver() queue.FailureObserver {
	return func(job queue.Job, cause error) {
		if job.Name != JobNameDeliver {
			return
		}

		var payload DeliveryJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			s.log.Error("failed to decode dead-lettered delivery job",
				slog.String("job_id", job.ID.String()),
				slog.Any("error", err))
			return
		}

		// The observer runs on the worker's goroutine after the job is
		// already dead-lettered; it is not tied to any request context.
		ctx := context.Background()
		for _, from := range []Status{StatusProcessing, StatusPending} {
			ok, err := s.storage.UpdateStatusIf(ctx, payload.NotificationID, from, StatusFailed)
			if err != nil {
				s.log.Error("failed to settle dead-lettered notification",
					slog.String("notification_id", payload.NotificationID.String()),
					slog.Any("error", err))
				return
			}
			if ok {
				s.publishStatus(ctx, EventFailed, payload.NotificationID, "", StatusFailed, cause.Error())
				s.log.Error("notification failed, delivery job dead-lettered",
					slog.String("notification_id", payload.NotificationID.String()),
					slog.Any("error", cause))
				return
			}
		}
	}
}

// Send validates the request, persists a pending record and kicks off
// asynchronous delivery. Validation and user-directory failures are
// returned synchronously and leave no record behind.
func (s *Service) Send(ctx context.Context, req SendRequest) (Receipt, error) {
	if err := validateRequest(&req); err != nil {
		return Receipt{}, err
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return Receipt{}, err
	}
	if user == nil {
		return Receipt{}, ErrUserNotFound
	}
	if !user.IsActive {
		return Receipt{}, ErrUserInactive
	}

	channels := allowedChannels(req.Channels, user.Preferences)
	if len(channels) == 0 {
		return Receipt{}, ErrNoChannelsAllowed
	}

	now := time.Now().UTC()
	n := &Notification{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Type:        req.Type,
		Title:       req.Title,
		Content:     req.Content,
		TemplateID:  req.TemplateID,
		Data:        req.Data,
		Channels:    channels,
		Priority:    req.Priority,
		Status:      StatusPending,
		Attempts:    0,
		MaxAttempts: req.MaxAttempts,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = s.maxAttempts
	}

	if err := s.storage.Create(ctx, n); err != nil {
		return Receipt{}, fmt.Errorf("failed to persist notification: %w", err)
	}

	if s.bus != nil {
		err := s.bus.Publish(ctx, EventRequested, RequestedEvent{
			NotificationID: n.ID.String(),
			UserID:         n.UserID,
		})
		if err != nil {
			// The record is pending; delivery stalls until the event is
			// replayed or the record is retried out of band.
			s.log.Error("failed to publish requested event",
				slog.String("notification_id", n.ID.String()),
				slog.Any("error", err))
		}
	} else if err := s.dispatch(ctx, n.ID); err != nil {
		s.log.Error("failed to dispatch notification",
			slog.String("notification_id", n.ID.String()),
			slog.Any("error", err))
	}

	return Receipt{
		ID:                n.ID,
		Status:            StatusPending,
		EstimatedDelivery: now.Add(n.Priority.EstimateDelay()),
	}, nil
}

// Cancel transitions a pending notification to cancelled. It reports false,
// without error, when the notification has already left pending; a claimed
// record completes or fails on its own terms.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.storage.UpdateStatusIf(ctx, id, StatusPending, StatusCancelled)
}

// Status returns the current record.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.storage.Get(ctx, id)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// History returns a page of the user's notifications, newest first. The
// page size is capped to keep scans bounded.
func (s *Service) History(ctx context.Context, userID string, page, limit int) (HistoryPage, error) {
	if userID == "" {
		return HistoryPage{}, ErrEmptyUserID
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	items, total, err := s.storage.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("failed to list notifications: %w", err)
	}

	return HistoryPage{
		Items:      items,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// MarkDelivered records provider confirmation for a sent notification.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	ok, err := s.storage.UpdateStatusIf(ctx, id, StatusSent, StatusDelivered)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotDeliverable
	}

	s.publishStatus(ctx, EventDelivered, id, "", StatusDelivered, "")
	return nil
}

// handleRequested is the bus handler driving PENDING into the queue.
func (s *Service) handleRequested(ctx context.Context, data json.RawMessage) error {
	var ev RequestedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("failed to decode requested event: %w", err)
	}

	id, err := uuid.Parse(ev.NotificationID)
	if err != nil {
		return fmt.Errorf("invalid notification ID %q: %w", ev.NotificationID, err)
	}

	return s.dispatch(ctx, id)
}

// dispatch claims a pending record and enqueues its delivery job. The
// PENDING to PROCESSING transition is conditional, so duplicate requested
// events (cross-node redelivery) collapse into one job.
func (s *Service) dispatch(ctx context.Context, id uuid.UUID) error {
	n, err := s.storage.Get(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.storage.UpdateStatusIf(ctx, id, StatusPending, StatusProcessing)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("notification already claimed",
			slog.String("notification_id", id.String()),
			slog.String("status", string(n.Status)))
		return nil
	}

	if s.enqueuer == nil {
		return s.process(ctx, id)
	}

	// Records written before the budget cap existed, or through storage
	// directly, may still exceed the queue's retry range.
	retries := n.MaxAttempts
	if retries > MaxAttemptsLimit {
		retries = MaxAttemptsLimit
	}

	opts := []queue.EnqueueOption{
		queue.WithQueue(s.queueName),
		queue.WithJobName(JobNameDeliver),
		queue.WithPriority(n.Priority.QueuePriority()),
		queue.WithMaxRetries(int8(retries)),
		queue.WithBackoff(s.backoff),
	}
	if n.ScheduledAt != nil && n.ScheduledAt.After(time.Now()) {
		opts = append(opts, queue.WithScheduledAt(*n.ScheduledAt))
	}

	if _, err := s.enqueuer.Enqueue(ctx, DeliveryJob{NotificationID: id}, opts...); err != nil {
		return fmt.Errorf("failed to enqueue delivery job: %w", err)
	}

	return nil
}

// process is the queue worker entry point. Channel-level failures feed the
// sent/failed decision; unexpected errors consume an attempt and bubble to
// the queue for retry.
func (s *Service) process(ctx context.Context, id uuid.UUID) error {
	n, err := s.storage.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The job references a record that no longer resolves. Retrying
			// cannot fix data inconsistency.
			return fmt.Errorf("%w: notification %s not found", queue.ErrPermanent, id)
		}
		return err
	}

	switch n.Status {
	case StatusProcessing:
		// Claimed by dispatch, this worker owns it.
	case StatusPending:
		ok, err := s.storage.UpdateStatusIf(ctx, id, StatusPending, StatusProcessing)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	default:
		// Terminal or sent already; duplicate job delivery is a no-op.
		return nil
	}

	user, err := s.users.FindByID(ctx, n.UserID)
	if err != nil {
		return s.fail(ctx, n, fmt.Errorf("failed to resolve user %s: %w", n.UserID, err))
	}
	if user == nil {
		return s.fail(ctx, n, fmt.Errorf("%w: %s", ErrUserNotFound, n.UserID))
	}

	subject, content, err := s.render(ctx, n)
	if err != nil {
		return s.fail(ctx, n, err)
	}

	results, panicErr := s.fanOut(ctx, n, user.Recipient(), subject, content)
	if panicErr != nil {
		// A throwing sender is a programmer or configuration error, not a
		// provider rejection. It consumes an attempt and the whole
		// notification is retried.
		return s.fail(ctx, n, panicErr)
	}

	var (
		succeeded int
		failures  []string
	)
	for ch, res := range results {
		if res.Success {
			succeeded++
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", ch, res.Err))
		s.log.Warn("channel delivery failed",
			slog.String("notification_id", id.String()),
			slog.String("channel", string(ch)),
			slog.String("provider", res.Provider),
			slog.String("error", res.Err))
	}

	// Partial success is success at the notification level.
	if succeeded > 0 {
		if _, err := s.storage.UpdateStatusIf(ctx, id, StatusProcessing, StatusSent); err != nil {
			return err
		}
		s.publishStatus(ctx, EventSent, id, n.UserID, StatusSent, "")
		return nil
	}

	if _, err := s.storage.UpdateStatusIf(ctx, id, StatusProcessing, StatusFailed); err != nil {
		return err
	}
	s.publishStatus(ctx, EventFailed, id, n.UserID, StatusFailed, strings.Join(failures, "; "))
	return nil
}

// render produces deliverable content from the record, via the template
// renderer when a template is referenced.
func (s *Service) render(ctx context.Context, n *Notification) (subject, content string, err error) {
	if n.TemplateID == "" {
		return n.Title, n.Content, nil
	}
	if s.renderer == nil {
		return "", "", fmt.Errorf("notification %s references template %q but no renderer is configured", n.ID, n.TemplateID)
	}

	rendered, err := s.renderer.Render(ctx, n.TemplateID, n.Data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render template %q: %w", n.TemplateID, err)
	}

	subject = rendered.Subject
	if subject == "" {
		subject = n.Title
	}
	return subject, rendered.Content, nil
}

// fanOut sends to every channel concurrently and joins all outcomes before
// returning. One channel's failure never cancels another's send. A
// panicking sender is reported as the joined panic error, separate from
// ordinary provider failures.
func (s *Service) fanOut(ctx context.Context, n *Notification, recipient sender.Recipient, subject, content string) (map[sender.Channel]sender.Result, error) {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		results   = make(map[sender.Channel]sender.Result, len(n.Channels))
		panicErrs []error
	)

	for _, ch := range n.Channels {
		wg.Add(1)
		go func(ch sender.Channel) {
			defer wg.Done()

			res, err := s.sendOne(ctx, ch, sender.ProcessedNotification{
				ID:             uuid.New().String(),
				NotificationID: n.ID.String(),
				UserID:         n.UserID,
				Channel:        ch,
				Recipient:      recipient,
				Subject:        subject,
				Content:        content,
				Metadata:       n.Metadata,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				panicErrs = append(panicErrs, err)
				return
			}
			results[ch] = res
		}(ch)
	}
	wg.Wait()

	return results, errors.Join(panicErrs...)
}

func (s *Service) sendOne(ctx context.Context, ch sender.Channel, notif sender.ProcessedNotification) (res sender.Result, err error) {
	snd, regErr := s.senders.Get(ch)
	if regErr != nil {
		return sender.Failed("", regErr), nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender %q for channel %s panicked: %v", snd.Name(), ch, r)
		}
	}()

	return snd.Send(ctx, notif), nil
}

// fail handles an unexpected processing error: one attempt is consumed and
// either the queue retries or the record goes terminal.
func (s *Service) fail(ctx context.Context, n *Notification, cause error) error {
	attempts, err := s.storage.IncrementAttempts(ctx, n.ID)
	if err != nil {
		return errors.Join(cause, err)
	}

	if attempts < n.MaxAttempts {
		s.log.Warn("notification processing failed, will retry",
			slog.String("notification_id", n.ID.String()),
			slog.Int("attempts", attempts),
			slog.Int("max_attempts", n.MaxAttempts),
			slog.Any("error", cause))
		return cause
	}

	if _, err := s.storage.UpdateStatusIf(ctx, n.ID, StatusProcessing, StatusFailed); err != nil {
		return errors.Join(cause, err)
	}

	s.publishStatus(ctx, EventFailed, n.ID, n.UserID, StatusFailed, cause.Error())
	s.log.Error("notification failed, retries exhausted",
		slog.String("notification_id", n.ID.String()),
		slog.Int("attempts", attempts),
		slog.Any("error", cause))

	return fmt.Errorf("%w: %v", queue.ErrPermanent, cause)
}

func (s *Service) publishStatus(ctx context.Context, event string, id uuid.UUID, userID string, status Status, errMsg string) {
	if s.bus == nil {
		return
	}

	err := s.bus.Publish(ctx, event, StatusEvent{
		NotificationID: id.String(),
		UserID:         userID,
		Status:         status,
		Error:          errMsg,
	})
	if err != nil {
		s.log.Error("failed to publish status event",
			slog.String("event", event),
			slog.String("notification_id", id.String()),
			slog.Any("error", err))
	}
}

func validateRequest(req *SendRequest) error {
	if req.UserID == "" {
		return ErrEmptyUserID
	}
	if len(req.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range req.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
		}
	}
	if req.TemplateID == "" && req.Content == "" {
		return ErrEmptyContent
	}
	if req.MaxAttempts > MaxAttemptsLimit {
		req.MaxAttempts = MaxAttemptsLimit
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPriority, req.Priority)
	}
	return nil
}

// allowedChannels deduplicates the requested channels preserving order and
// drops those the user opted out of.
func allowedChannels(requested []sender.Channel, prefs Preferences) []sender.Channel {
	seen := make(map[sender.Channel]struct{}, len(requested))
	out := make([]sender.Channel, 0, len(requested))
	for _, ch := range requested {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		if prefs.Enabled(ch) {
			out = append(out, ch)
		}
	}
	return out
}
