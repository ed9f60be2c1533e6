package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/mk0link/adapter"
	"github.com/justapithecus/mk0link/adapter/redis"
	"github.com/justapithecus/mk0link/adapter/webhook"
	"github.com/justapithecus/mk0link/archive"
	"github.com/justapithecus/mk0link/cli/config"
	"github.com/justapithecus/mk0link/device"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/s3x"
	"github.com/justapithecus/mk0link/types"
)

// sinkCloseTimeout bounds draining the forwarder and the final archive flush.
const sinkCloseTimeout = 10 * time.Second

// sinks are the downstreams a monitor session feeds besides the log.
type sinks struct {
	lines []device.LineSink

	forwarder *adapter.Forwarder

	stopArchive context.CancelFunc
	archiveDone chan error
}

func startSinks(ctx context.Context, cfg *config.Config, meta *types.SessionMeta, logger *log.Logger, collector *metrics.Collector) (*sinks, error) {
	s := &sinks{}

	fwd, err := newForwarder(cfg.Forward, meta, logger, collector)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	if fwd != nil {
		s.forwarder = fwd
		s.lines = append(s.lines, fwd)
	}

	arc, err := newArchive(ctx, cfg.Archive, meta, logger, collector)
	if err != nil {
		s.close(logger)
		return nil, fmt.Errorf("archive: %w", err)
	}
	if arc != nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopArchive = cancel
		s.archiveDone = make(chan error, 1)
		go func() { s.archiveDone <- arc.Run(runCtx) }()
		s.lines = append(s.lines, arc)
	}
	return s, nil
}

// close drains the forwarder and runs the archive's final flush.
func (s *sinks) close(logger *log.Logger) {
	if s.forwarder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkCloseTimeout)
		if err := s.forwarder.Close(ctx); err != nil {
			logger.Warn("forwarder close", map[string]any{"error": err.Error()})
		}
		cancel()
		s.forwarder = nil
	}
	if s.stopArchive != nil {
		s.stopArchive()
		if err := <-s.archiveDone; err != nil {
			logger.Error("archive flush failed", map[string]any{"error": err.Error()})
		}
		s.stopArchive = nil
	}
}

func newForwarder(cfg config.ForwardConfig, meta *types.SessionMeta, logger *log.Logger, collector *metrics.Collector) (*adapter.Forwarder, error) {
	var (
		a   adapter.Adapter
		err error
	)
	switch cfg.Type {
	case "":
		return nil, nil
	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err = redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Stream:  cfg.Stream,
			MaxLen:  cfg.MaxLen,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err = webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown forward type: %s (must be redis or webhook)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return adapter.NewForwarder(a, adapter.ForwarderOptions{
		Name:      cfg.Type,
		QueueSize: cfg.Queue,
		Meta:      meta,
		Logger:    logger,
		Collector: collector,
	}), nil
}

func newArchive(ctx context.Context, cfg config.ArchiveConfig, meta *types.SessionMeta, logger *log.Logger, collector *metrics.Collector) (*archive.Archive, error) {
	acfg := archive.Config{
		Dataset:       cfg.Dataset,
		Device:        cfg.Device,
		FlushCount:    cfg.FlushCount,
		FlushInterval: cfg.FlushInterval.Duration,
		Meta:          meta,
	}
	opts := archive.Options{Logger: logger, Collector: collector}

	switch cfg.Backend {
	case "":
		return nil, nil
	case "fs":
		return archive.NewFS(acfg, cfg.Path, opts)
	case "s3":
		bucket, prefix := archive.ParseS3Path(cfg.Path)
		return archive.NewS3(ctx, acfg, archive.S3Config{
			Bucket: bucket,
			Prefix: prefix,
			Options: s3x.Options{
				Region:       cfg.Region,
				Endpoint:     cfg.Endpoint,
				UsePathStyle: cfg.S3PathStyle,
			},
		}, opts)
	default:
		return nil, fmt.Errorf("unknown archive backend: %s (must be fs or s3)", cfg.Backend)
	}
}
