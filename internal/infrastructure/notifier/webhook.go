package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender posts triggered-alert notifications to a configured
// endpoint. Delivery retries live in the dispatcher, not here.
type WebhookSender struct {
	httpClient *http.Client
	url        string
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

type webhookPayload struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func (w *WebhookSender) Send(ctx context.Context, channel, recipient, message string) error {
	const op = "notifier.WebhookSender.Send"

	payload, err := json.Marshal(webhookPayload{
		Channel:   channel,
		Recipient: recipient,
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
	}

	return nil
}
