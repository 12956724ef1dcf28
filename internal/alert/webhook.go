package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

var (
	httpClient   = &http.Client{Timeout: requestTimeout}
	retryBackoff = time.Second
)

// Webhook publishes matching events to configured HTTP endpoints.
type Webhook struct {
	configs []AlertConfig
}

// NewWebhook creates a webhook publisher. Returns nil if configs is empty
// (callers should nil-check).
func NewWebhook(configs []AlertConfig) *Webhook {
	if len(configs) == 0 {
		return nil
	}
	return &Webhook{configs: configs}
}

// Publish sends e to every webhook whose Events list matches.
func (w *Webhook) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, cfg := range w.configs {
		if !matches(cfg.Events, e) {
			continue
		}
		if err := Send(ctx, cfg, e); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", cfg.URL, err))
		}
	}
	return errors.Join(errs...)
}

func matches(events []string, e Event) bool {
	if len(events) == 0 {
		return true
	}
	for _, want := range events {
		if want == e.Type || want == string(e.Topic) {
			return true
		}
	}
	return false
}

// Send posts an event to a webhook endpoint with retry on 5xx.
func Send(ctx context.Context, cfg AlertConfig, e Event) error {
	body, err := FormatPayload(cfg.Format, e)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		// 5xx, retry
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}
