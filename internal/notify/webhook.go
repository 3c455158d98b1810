// Package notify posts storefront notifications to chat webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront/internal/util"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when a channel has no webhook URL
var ErrNotConfigured = errors.New("notify: webhook not configured")

// Field is one labelled value of a message
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short,omitempty"`
}

// Message is a notification rendered as an incoming-webhook payload
type Message struct {
	Text   string
	Fields []Field
}

type attachment struct {
	Fields []Field `json:"fields"`
}

type webhookPayload struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// Webhook delivers messages to a single incoming-webhook URL
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a webhook client; an empty url disables delivery
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: util.GetLogger(),
	}
}

// Enabled reports whether the webhook has a destination
func (w *Webhook) Enabled() bool {
	return w.url != ""
}

// Send posts msg to the webhook
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if !w.Enabled() {
		return ErrNotConfigured
	}

	payload := webhookPayload{Text: msg.Text}
	if len(msg.Fields) > 0 {
		payload.Attachments = []attachment{{Fields: msg.Fields}}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, body)
	}

	w.logger.Debug("Webhook delivered", zap.String("text", msg.Text))
	return nil
}
