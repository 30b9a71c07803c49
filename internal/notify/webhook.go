package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier posts alerts as chat-bot text messages.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookNotifier) {
		if c != nil {
			w.client = c
		}
	}
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier posting to url.
func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	w := &WebhookNotifier{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify posts subject and body as one text message.
func (w *WebhookNotifier) Notify(ctx context.Context, subject, body string) error {
	if w == nil || w.url == "" {
		return &NotifyError{Channel: "webhook", Err: errors.New("empty url")}
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: strings.TrimSpace(subject + "\n" + body)},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return &NotifyError{Channel: "webhook", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return &NotifyError{Channel: "webhook", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return &NotifyError{Channel: "webhook", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &NotifyError{Channel: "webhook", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}
