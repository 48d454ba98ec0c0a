package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const SignatureHeader = "X-Tracker-Signature"

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

type WebhookOption func(*WebhookPublisher)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(p *WebhookPublisher) { p.client = c }
}

// WithRetries sets how many times a failed delivery is retried and the pause
// between attempts.
func WithRetries(n int, delay time.Duration) WebhookOption {
	return func(p *WebhookPublisher) {
		p.retries = n
		p.delay = delay
	}
}

// WebhookPublisher POSTs each event to a fixed URL.
type WebhookPublisher struct {
	url     string
	secret  string
	client  *http.Client
	retries int
	delay   time.Duration
}

func NewWebhookPublisher(url, secret string, opts ...WebhookOption) *WebhookPublisher {
	p := &WebhookPublisher{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		retries: 2,
		delay:   time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *WebhookPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay):
			}
		}
		if lastErr = p.deliver(ctx, e, payload); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p *WebhookPublisher) deliver(ctx context.Context, e Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+SignPayload(payload, p.secret))
	req.Header.Set("X-Tracker-Event", string(e.Type))
	req.Header.Set("X-Tracker-Timestamp", e.Timestamp.Format(time.RFC3339))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
