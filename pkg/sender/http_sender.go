package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GatewayConfig configures an HTTP gateway sender. SMS and push providers
// that expose a plain JSON POST endpoint are wired through the same client.
type GatewayConfig struct {
	SMSEndpoint  string        `env:"SMS_GATEWAY_URL"`
	SMSAPIKey    string        `env:"SMS_GATEWAY_API_KEY"`
	PushEndpoint string        `env:"PUSH_GATEWAY_URL"`
	PushAPIKey   string        `env:"PUSH_GATEWAY_API_KEY"`
	Timeout      time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
}

// gatewayRequest is the JSON body posted to a gateway endpoint.
type gatewayRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// gatewayResponse is the JSON body a gateway returns. Status uses the
// provider's vocabulary; anything unrecognized is treated as still in
// flight.
type gatewayResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// HTTPSender delivers notifications through a JSON-over-HTTP gateway.
type HTTPSender struct {
	channel   Channel
	name      string
	endpoint  string
	apiKey    string
	client    *http.Client
	recipient func(Recipient) string
}

// NewSMSSender creates a gateway sender for the SMS channel.
func NewSMSSender(cfg GatewayConfig) (*HTTPSender, error) {
	s := &HTTPSender{
		channel:   ChannelSMS,
		name:      "sms-gateway",
		endpoint:  cfg.SMSEndpoint,
		apiKey:    cfg.SMSAPIKey,
		client:    &http.Client{Timeout: cfg.timeout()},
		recipient: func(r Recipient) string { return r.Phone },
	}
	if err := s.ValidateConfig(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPushSender creates a gateway sender for the push channel.
func NewPushSender(cfg GatewayConfig) (*HTTPSender, error) {
	s := &HTTPSender{
		channel:   ChannelPush,
		name:      "push-gateway",
		endpoint:  cfg.PushEndpoint,
		apiKey:    cfg.PushAPIKey,
		client:    &http.Client{Timeout: cfg.timeout()},
		recipient: func(r Recipient) string { return r.DeviceToken },
	}
	if err := s.ValidateConfig(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c GatewayConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (s *HTTPSender) Channel() Channel { return s.channel }
func (s *HTTPSender) Name() string     { return s.name }

// ValidateConfig implements Sender.
func (s *HTTPSender) ValidateConfig() error {
	if s.endpoint == "" {
		return fmt.Errorf("%w: %s endpoint is required", ErrInvalidConfig, s.channel)
	}
	if _, err := url.ParseRequestURI(s.endpoint); err != nil {
		return fmt.Errorf("%w: %s endpoint: %v", ErrInvalidConfig, s.channel, err)
	}
	if s.apiKey == "" {
		return fmt.Errorf("%w: %s API key is required", ErrInvalidConfig, s.channel)
	}
	return nil
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, notif ProcessedNotification) Result {
	to := s.recipient(notif.Recipient)
	if to == "" {
		return Failed(s.name, ErrMissingRecipient)
	}

	body, err := json.Marshal(gatewayRequest{
		To:      to,
		Subject: notif.Subject,
		Body:    notif.Content,
	})
	if err != nil {
		return Failed(s.name, fmt.Errorf("encode request: %w", err))
	}

	resp, err := s.post(ctx, s.endpoint, body)
	if err != nil {
		return Failed(s.name, err)
	}
	if resp.Error != "" {
		return Failed(s.name, fmt.Errorf("gateway rejected message: %s", resp.Error))
	}

	return OK(s.name, resp.MessageID)
}

// DeliveryStatus implements Sender. The gateway exposes per-message status
// at <endpoint>/<messageID>.
func (s *HTTPSender) DeliveryStatus(ctx context.Context, messageID string) (DeliveryState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/"+url.PathEscape(messageID), nil)
	if err != nil {
		return StateProcessing, err
	}
	req.Header.Set("X-API-Key", s.apiKey)

	httpResp, err := s.client.Do(req)
	if err != nil {
		return StateProcessing, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return StateProcessing, fmt.Errorf("gateway status %d", httpResp.StatusCode)
	}

	var resp gatewayResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return StateProcessing, fmt.Errorf("decode response: %w", err)
	}

	return mapGatewayState(resp.Status), nil
}

func (s *HTTPSender) post(ctx context.Context, endpoint string, body []byte) (*gatewayResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", s.apiKey)

	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway status %d", httpResp.StatusCode)
	}

	var resp gatewayResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func mapGatewayState(status string) DeliveryState {
	switch status {
	case "sent":
		return StateSent
	case "delivered":
		return StateDelivered
	case "failed", "bounced", "rejected":
		return StateFailed
	default:
		return StateProcessing
	}
}
