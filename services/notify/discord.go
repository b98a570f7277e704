// Package notify delivers signal and alert messages to a Discord webhook and
// maintains the bot heartbeat file the watchdog observes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DiscordSender posts messages to a Discord webhook. Best-effort: callers
// log and continue on failure, a dropped notification never stops a loop.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether a webhook URL was provided.
func (d *DiscordSender) Configured() bool { return d.webhookURL != "" }

// Send posts a plain content message to the webhook.
func (d *DiscordSender) Send(ctx context.Context, message string) error {
	if d.webhookURL == "" {
		return fmt.Errorf("discord: no webhook configured")
	}
	payload := map[string]string{"content": message}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
