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

// =============================================================================
// Webhook Notifier
// =============================================================================

// WebhookConfig holds configuration for the webhook notifier.
type WebhookConfig struct {
	URL           string
	Token         string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultWebhookConfig returns default webhook configuration.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// WebhookNotifier POSTs events as JSON to a URL.
type WebhookNotifier struct {
	url           string
	token         string
	retryAttempts int
	retryDelay    time.Duration
	httpClient    *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}

	return &WebhookNotifier{
		url:           cfg.URL,
		token:         cfg.Token,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Notify sends the event, retrying on transport errors and 5xx responses.
func (w *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.retryAttempts; attempt++ {
		retry, err := w.send(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == w.retryAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retryDelay):
		}
	}
	return lastErr
}

// send posts body once and reports whether a failure is worth retrying.
func (w *WebhookNotifier) send(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode >= 500, fmt.Errorf("webhook returned error %d: %s", resp.StatusCode, string(respBody))
	}
	return false, nil
}
