// Package alert delivers best-effort operational messages: chat webhook
// alerts about slow or failed runs, and the application server's
// post-run notification.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/logger"
)

const webhookTimeout = 10 * time.Second

// Sink delivers a plain-text alert.
type Sink interface {
	Send(ctx context.Context, message string) error
}

// Webhook posts {"text": message} to a Slack-compatible incoming webhook.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook sender. An empty URL disables sending.
func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: webhookTimeout}}
}

// Send implements Sink. A missing URL is logged and not an error.
func (w *Webhook) Send(ctx context.Context, message string) error {
	if w.url == "" {
		logger.Ctx(ctx).Warn("ALERT_WEBHOOK_URL not set; skipping alert", logger.String("message", message))
		return nil
	}

	data, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// DurationExceeded formats the slow-run alert.
func DurationExceeded(batchID string, elapsed time.Duration) string {
	return fmt.Sprintf("Analytics batch %s exceeded duration threshold: %.1fs", batchID, elapsed.Seconds())
}

// EndedWithErrors formats the failed-run alert.
func EndedWithErrors(batchID, errText string) string {
	return fmt.Sprintf("Analytics batch %s ended with errors: %s", batchID, errText)
}
