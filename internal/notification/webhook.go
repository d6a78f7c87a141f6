package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const webhookTimeout = 10 * time.Second

// webhookBody is the JSON document POSTed for each alert.
type webhookBody struct {
	Alert
	TS string `json:"ts"`
}

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookBody{Alert: alert, TS: w.now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// Include up to 256 bytes of the reply.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if s := strings.TrimSpace(string(snippet)); s != "" {
			return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, s)
		}
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
