package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shorelinehq/courier/internal/config"
	"github.com/shorelinehq/courier/internal/models"
	"github.com/shorelinehq/courier/internal/signing"
)

// DeliveryError is a failed channel delivery attempt. It is recovered
// locally by the worker's retry loop, never surfaced to the original
// caller.
type DeliveryError struct {
	Channel models.Channel
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Result reports one successful delivery.
type Result struct {
	DeliveredAt time.Time
}

// Sender is the per-channel delivery action. All three channels share
// this contract; the executor treats them identically.
type Sender interface {
	Deliver(ctx context.Context, msg *models.Message) (*Result, error)
}

// Registry maps each channel to its delivery action. Finite dispatch:
// adding a channel means one entry here plus one queue-name mapping.
type Registry map[models.Channel]Sender

func NewRegistry(cfg config.ProvidersConfig, timeout time.Duration) Registry {
	client := &http.Client{Timeout: timeout}
	return Registry{
		models.ChannelEmail:    newProviderSender(models.ChannelEmail, cfg.Email, client),
		models.ChannelSMS:      newProviderSender(models.ChannelSMS, cfg.SMS, client),
		models.ChannelWhatsApp: newProviderSender(models.ChannelWhatsApp, cfg.WhatsApp, client),
	}
}

// providerSender posts the message to a channel provider endpoint with a
// signed payload.
type providerSender struct {
	channel models.Channel
	url     string
	apiKey  string
	secret  string
	client  *http.Client
}

func newProviderSender(channel models.Channel, cfg config.ProviderConfig, client *http.Client) *providerSender {
	return &providerSender{
		channel: channel,
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		secret:  cfg.Secret,
		client:  client,
	}
}

type providerPayload struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject,omitempty"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *providerSender) Deliver(ctx context.Context, msg *models.Message) (*Result, error) {
	payload, err := json.Marshal(providerPayload{
		To:       msg.Recipient,
		Subject:  msg.Subject,
		Body:     msg.Body,
		Metadata: msg.Metadata,
	})
	if err != nil {
		return nil, &DeliveryError{Channel: s.channel, Err: err}
	}

	signature, timestamp := signing.Sign(s.secret, msg.MessageID, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &DeliveryError{Channel: s.channel, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("X-Courier-Message-ID", msg.MessageID)
	req.Header.Set("X-Courier-Timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("X-Courier-Signature", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &DeliveryError{Channel: s.channel, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &DeliveryError{
			Channel: s.channel,
			Err:     fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	return &Result{DeliveredAt: time.Now().UTC()}, nil
}
