// Package redis forwards device log lines to Redis.
//
// Lines are either PUBLISHed to a channel, reaching only live subscribers,
// or appended to a stream with XADD so consumers can read history.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/mk0link/adapter"
)

const (
	// DefaultChannel names the pub/sub channel, or the stream key in stream mode.
	DefaultChannel = "mk0:device_log"
	// DefaultTimeout bounds a single PUBLISH or XADD.
	DefaultTimeout = 5 * time.Second
	// DefaultRetries is the number of attempts after the first.
	DefaultRetries = 3
)

// Config configures the Redis forwarder.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel or stream key (default: mk0:device_log).
	Channel string
	// Stream appends to a stream with XADD instead of publishing.
	Stream bool
	// MaxLen trims the stream to roughly this many entries. Zero disables trimming.
	MaxLen int64
	// Timeout bounds each attempt (default 5s).
	Timeout time.Duration
	// Retries is the number of attempts after the first.
	Retries int
}

// Adapter writes device log events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
	retry  adapter.Retry
}

// New validates cfg, applies defaults and connects lazily.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.MaxLen < 0 {
		return nil, fmt.Errorf("max_len must be >= 0, got %d", cfg.MaxLen)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
		retry:  adapter.Retry{Retries: cfg.Retries, Backoff: adapter.DefaultBackoff},
	}, nil
}

// Channel returns the channel or stream key events are written to.
func (a *Adapter) Channel() string { return a.config.Channel }

// Publish writes the event as JSON, retrying on failure.
func (a *Adapter) Publish(ctx context.Context, event *adapter.LogLineEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	if err := a.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.write(ctx, event.Level, body)
	}); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (a *Adapter) write(ctx context.Context, level string, body []byte) error {
	if !a.config.Stream {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}
	return a.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: a.config.Channel,
		MaxLen: a.config.MaxLen,
		Approx: a.config.MaxLen > 0,
		Values: map[string]any{"level": level, "event": body},
	}).Err()
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
