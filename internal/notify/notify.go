// Package notify delivers lifecycle event messages to a Discord-style
// webhook. Delivery is best-effort: failures are logged, never
// propagated into the lifecycle.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notifier is the capability the controller depends on; a nil *Webhook
// satisfies it as a no-op.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type payload struct {
	Content string `json:"content"`
}

type Webhook struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewWebhook returns a webhook notifier, or nil when the URL is empty
// (notifications disabled). Nil receivers are safe to call.
func NewWebhook(url string, log *slog.Logger) *Webhook {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (w *Webhook) Notify(ctx context.Context, message string) {
	if w == nil {
		return
	}
	body, err := json.Marshal(payload{Content: message})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.log.Warn("webhook request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Warn("webhook delivery failed", "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		w.log.Warn("webhook rejected", "status", resp.Status)
	}
}
