package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/types"
)

// DefaultQueueSize bounds the number of lines waiting to be published.
const DefaultQueueSize = 1024

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	// Name identifies the downstream in logs (e.g. "redis", "webhook").
	Name string
	// QueueSize is the pending line capacity (default DefaultQueueSize).
	QueueSize int
	// Meta stamps session_id and port onto each event. May be nil.
	Meta      *types.SessionMeta
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Forwarder publishes decoded lines through an Adapter on its own goroutine.
//
// HandleLine never blocks the reader: when the queue is full the line is
// dropped and counted as a forward failure.
type Forwarder struct {
	adapter   Adapter
	name      string
	meta      *types.SessionMeta
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan *LogLineEvent

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewForwarder starts a forwarder publishing through a.
// The forwarder owns a and closes it on Close.
func NewForwarder(a Adapter, opts ForwarderOptions) *Forwarder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Forwarder{
		adapter:   a,
		name:      opts.Name,
		meta:      opts.Meta,
		logger:    opts.Logger,
		collector: opts.Collector,
		now:       time.Now,
		queue:     make(chan *LogLineEvent, opts.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

// HandleLine enqueues line for publishing.
func (f *Forwarder) HandleLine(line types.LogLine) {
	ev := NewLogLineEvent(f.meta, line, f.now())

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- ev:
	default:
		f.collector.IncForwardFailure()
		f.logger.Warn("forward queue full, dropping line", map[string]any{
			"forwarder": f.name,
			"hash":      ev.Hash,
		})
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for ev := range f.queue {
		if err := f.adapter.Publish(f.ctx, ev); err != nil {
			f.collector.IncForwardFailure()
			f.logger.Warn("forward publish failed", map[string]any{
				"forwarder": f.name,
				"hash":      ev.Hash,
				"error":     err.Error(),
			})
		}
	}
}

// Close drains queued lines and closes the adapter. If ctx ends before the
// queue drains, in-flight publishes are canceled and remaining lines fail
// fast, each counted as a forward failure.
func (f *Forwarder) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	select {
	case <-f.done:
	case <-ctx.Done():
		f.cancel()
		<-f.done
	}
	f.cancel()
	return f.adapter.Close()
}
