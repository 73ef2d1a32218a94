package sender

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mrz1836/postmark"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// EmailConfig holds Postmark-backed email sender configuration.
type EmailConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	SenderEmail  string `env:"SENDER_EMAIL,required"`
}

// EmailSender delivers email notifications through Postmark's transactional
// API.
type EmailSender struct {
	client *postmark.Client
	config EmailConfig
}

// NewEmailSender creates a Postmark-backed email sender. Tokens are required
// up front: a broken email channel should fail wiring, not first delivery.
func NewEmailSender(cfg EmailConfig) (*EmailSender, error) {
	s := &EmailSender{config: cfg}
	if err := s.ValidateConfig(); err != nil {
		return nil, err
	}
	s.client = postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	return s, nil
}

func (s *EmailSender) Channel() Channel { return ChannelEmail }
func (s *EmailSender) Name() string     { return "postmark" }

// ValidateConfig implements Sender.
func (s *EmailSender) ValidateConfig() error {
	if s.config.ServerToken == "" {
		return fmt.Errorf("%w: ServerToken is required", ErrInvalidConfig)
	}
	if s.config.AccountToken == "" {
		return fmt.Errorf("%w: AccountToken is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(s.config.SenderEmail) {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}

// Send implements Sender. Provider rejections come back as failed results.
func (s *EmailSender) Send(ctx context.Context, notif ProcessedNotification) Result {
	if notif.Recipient.Email == "" {
		return Failed(s.Name(), ErrMissingRecipient)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.config.SenderEmail,
		To:       notif.Recipient.Email,
		Subject:  notif.Subject,
		HTMLBody: notif.Content,
		Tag:      notif.Metadata["tag"],
	})
	if err != nil {
		return Failed(s.Name(), err)
	}
	if resp.ErrorCode > 0 {
		return Failed(s.Name(), fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}

	return OK(s.Name(), resp.MessageID)
}

// DeliveryStatus implements Sender. Postmark reports opens and bounces
// through outbound message details; anything not clearly delivered or
// bounced maps to processing.
func (s *EmailSender) DeliveryStatus(ctx context.Context, messageID string) (DeliveryState, error) {
	msg, err := s.client.GetOutboundMessage(ctx, messageID)
	if err != nil {
		return StateProcessing, err
	}

	switch msg.Status {
	case "Sent":
		return StateSent, nil
	case "Processed", "Queued":
		return StateProcessing, nil
	default:
		return StateProcessing, nil
	}
}
