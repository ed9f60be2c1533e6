// Package webhook forwards device log lines to an HTTP endpoint as JSON POSTs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justapithecus/mk0link/adapter"
	"github.com/justapithecus/mk0link/iox"
)

const (
	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is the number of attempts after the first.
	DefaultRetries = 3
)

// SessionHeader carries the session id so receivers can group lines.
const SessionHeader = "X-Mk0-Session"

// Config configures the webhook forwarder.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are added to each request.
	Headers map[string]string
	// Timeout bounds each request (default 10s).
	Timeout time.Duration
	// Retries is the number of attempts after the first.
	Retries int
}

// Adapter POSTs device log events.
type Adapter struct {
	config Config
	client *http.Client
	retry  adapter.Retry
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  adapter.Retry{Retries: cfg.Retries, Backoff: adapter.DefaultBackoff},
	}, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether the receiver may accept the same request later.
// Client errors other than 408 and 429 are final.
func (e *StatusError) Retriable() bool {
	switch {
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 400 && e.Code < 500:
		return false
	}
	return true
}

// Publish POSTs the event. Network errors and retriable statuses are retried.
func (a *Adapter) Publish(ctx context.Context, event *adapter.LogLineEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	err = a.retry.Do(ctx, func(ctx context.Context) error {
		err := a.post(ctx, event.SessionID, body)
		var se *StatusError
		if errors.As(err, &se) && !se.Retriable() {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, session string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
