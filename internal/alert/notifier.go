package alert

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

	"github.com/HerbHall/driftwatch/pkg/stream"
)

// Compile-time interface guard.
var _ Notifier = (*WebhookNotifier)(nil)

// Notifier delivers anomaly notifications to an external sink.
type Notifier interface {
	Notify(ctx context.Context, eventType string, record *stream.AnomalyRecord) error
	Type() string
}

// webhookPayload is the JSON body sent to webhook endpoints.
type webhookPayload struct {
	EventType string                `json:"event_type"`
	Anomaly   *stream.AnomalyRecord `json:"anomaly,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// WebhookNotifier delivers notifications via HTTP POST to a configured URL.
type WebhookNotifier struct {
	client *http.Client
	cfg    Config
}

// NewWebhookNotifier creates a webhook notifier with the given config.
func NewWebhookNotifier(cfg Config) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

// Notify sends an anomaly to the configured webhook URL.
func (w *WebhookNotifier) Notify(ctx context.Context, eventType string, record *stream.AnomalyRecord) error {
	payload := webhookPayload{
		EventType: eventType,
		Anomaly:   record,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Driftwatch-Webhook/0.1")

	// Add HMAC-SHA256 signature if a secret is configured.
	if w.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST %s: %w", w.cfg.WebhookURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook POST %s: status %d", w.cfg.WebhookURL, resp.StatusCode)
	}

	return nil
}

// Type returns the notifier type identifier.
func (w *WebhookNotifier) Type() string {
	return "webhook"
}
