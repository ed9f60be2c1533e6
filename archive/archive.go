// Package archive persists decoded device log lines to a Lode dataset.
//
// Lines are buffered in memory and written in batches, Hive-partitioned by
// device, day and level. Backends are the local filesystem, S3 (or an
// S3-compatible store) and memory for tests.
package archive

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/types"
)

// Defaults for Config.
const (
	DefaultDataset       = "mk0link"
	DefaultDevice        = "mk0"
	DefaultFlushCount    = 256
	DefaultFlushInterval = 5 * time.Second
)

// maxPendingBatches bounds the buffer while the backend keeps failing.
const maxPendingBatches = 16

// RecordKindDeviceLog is the record_kind of every archived line.
const RecordKindDeviceLog = "device_log"

// PartitionKeys is the Hive layout shared by the write and read paths.
var PartitionKeys = []string{"device", "day", "level"}

// DeriveDay formats t as the day partition (YYYY-MM-DD, UTC).
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config controls partitioning and batching.
type Config struct {
	// Dataset is the Lode dataset ID (default "mk0link").
	Dataset string
	// Device is the device partition value (default "mk0").
	Device string
	// FlushCount triggers a write once this many lines are buffered.
	FlushCount int
	// FlushInterval bounds how long a line may sit in the buffer when Run
	// is active.
	FlushInterval time.Duration
	// Meta stamps session_id and port onto each record. May be nil.
	Meta *types.SessionMeta
}

func (c *Config) applyDefaults() {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.FlushCount <= 0 {
		c.FlushCount = DefaultFlushCount
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
}

// Options carries the archive's collaborators.
type Options struct {
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Archive buffers decoded lines and writes them to a dataset.
// HandleLine is safe for concurrent use with Flush and Run.
type Archive struct {
	ds        lode.Dataset
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time

	mu      sync.Mutex
	pending []any
	kick    chan struct{}

	writeMu sync.Mutex
}

// New creates an archive writing through factory.
// Use lode.NewMemoryFactory() for tests.
func New(cfg Config, factory lode.StoreFactory, opts Options) (*Archive, error) {
	cfg.applyDefaults()
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, wrap("init", cfg.Dataset, err)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	return &Archive{
		ds:        ds,
		cfg:       cfg,
		logger:    opts.Logger,
		collector: opts.Collector,
		now:       time.Now,
		kick:      make(chan struct{}, 1),
	}, nil
}

// NewFS creates an archive rooted at a local directory.
func NewFS(cfg Config, root string, opts Options) (*Archive, error) {
	return New(cfg, lode.NewFSFactory(root), opts)
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// HandleLine buffers line for the next write. Reaching FlushCount wakes Run.
func (a *Archive) HandleLine(line types.LogLine) {
	rec := a.record(line, a.now())

	a.mu.Lock()
	a.pending = append(a.pending, rec)
	full := len(a.pending) >= a.cfg.FlushCount
	a.mu.Unlock()

	if full {
		select {
		case a.kick <- struct{}{}:
		default:
		}
	}
}

// Pending reports the number of buffered lines.
func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Archive) record(line types.LogLine, at time.Time) map[string]any {
	rec := map[string]any{
		"record_kind":    RecordKindDeviceLog,
		"ts":             at.UTC().Format(time.RFC3339Nano),
		"hash":           strconv.FormatUint(line.Hash, 10),
		"template":       line.Template,
		"message":        line.Text,
		"latest_version": line.Version,
		"device":         a.cfg.Device,
		"day":            DeriveDay(at),
		"level":          line.Level.String(),
	}
	if len(line.Values) > 0 {
		rec["args"] = line.Values
	}
	if m := a.cfg.Meta; m != nil {
		rec["session_id"] = m.SessionID
		rec["port"] = m.Port
	}
	return rec
}

// Flush writes all buffered lines as one snapshot. On failure the lines are
// put back at the head of the buffer so the next flush retries them.
func (a *Archive) Flush(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if _, err := a.ds.Write(ctx, batch, lode.Metadata{}); err != nil {
		a.collector.IncArchiveWriteFailure()
		a.requeue(batch)
		err = wrap("write", a.cfg.Dataset, err)
		a.logger.Error("archive write failed", map[string]any{
			"lines": len(batch),
			"error": err.Error(),
		})
		return err
	}

	a.collector.IncArchiveWriteSuccess()
	a.logger.Debug("archive batch written", map[string]any{"lines": len(batch)})
	return nil
}

// requeue restores a failed batch ahead of newer lines, keeping at most
// maxPending lines and dropping the oldest beyond that.
func (a *Archive) requeue(batch []any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(batch, a.pending...)
	if limit := a.maxPending(); len(a.pending) > limit {
		dropped := len(a.pending) - limit
		a.pending = append([]any(nil), a.pending[dropped:]...)
		a.logger.Warn("archive buffer full, dropping oldest lines", map[string]any{"dropped": dropped})
	}
}

func (a *Archive) maxPending() int {
	return a.cfg.FlushCount * maxPendingBatches
}

// Run flushes on FlushInterval and whenever FlushCount is reached, until ctx
// is done. A final flush runs on exit with a fresh context bounded by
// FlushInterval.
func (a *Archive) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.FlushInterval)
			defer cancel()
			return a.Flush(final)
		case <-ticker.C:
		case <-a.kick:
		}
		// Failures are counted and logged; buffered lines retry next tick.
		_ = a.Flush(ctx)
	}
}

// Close writes any buffered lines.
func (a *Archive) Close(ctx context.Context) error {
	return a.Flush(ctx)
}
