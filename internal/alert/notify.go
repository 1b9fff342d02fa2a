package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/logger"
)

const (
	notifyPath    = "/api/analytics/notify"
	notifyTimeout = 5 * time.Second
)

// Notifier tells the application server that a batch's summaries are ready.
type Notifier interface {
	Notify(ctx context.Context, batchID string, userIDs []int64) error
}

// ServerNotifier posts to the application server's notify endpoint.
type ServerNotifier struct {
	baseURL string
	key     string
	client  *http.Client
}

// NewServerNotifier creates a notifier. It is disabled unless both the base
// URL and the key are set.
func NewServerNotifier(baseURL, key string) *ServerNotifier {
	return &ServerNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  &http.Client{Timeout: notifyTimeout},
	}
}

type notifyRequest struct {
	BatchID string  `json:"batchId"`
	UserIDs []int64 `json:"userIds"`
}

// Notify implements Notifier.
func (n *ServerNotifier) Notify(ctx context.Context, batchID string, userIDs []int64) error {
	if n.baseURL == "" || n.key == "" {
		logger.Ctx(ctx).Debug("SERVER_BASE_URL or ANALYTICS_NOTIFY_KEY not set; skipping notify")
		return nil
	}
	if userIDs == nil {
		userIDs = []int64{}
	}

	data, err := json.Marshal(notifyRequest{BatchID: batchID, UserIDs: userIDs})
	if err != nil {
		return fmt.Errorf("failed to encode notify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+notifyPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.key)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to notify server: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify returned status %d", resp.StatusCode)
	}
	return nil
}
