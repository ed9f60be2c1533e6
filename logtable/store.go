package logtable

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
)

// Store publishes the current Table. Readers call Table() from any
// goroutine and see either the old or the new table across a reload, never
// a partial one.
type Store struct {
	source    Source
	current   atomic.Pointer[Table]
	logger    *log.Logger
	collector *metrics.Collector
}

// NewStore creates a store holding an empty table. Call Load to populate it.
// logger and collector may be nil.
func NewStore(source Source, logger *log.Logger, collector *metrics.Collector) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Store{source: source, logger: logger, collector: collector}
	s.current.Store(NewTable())
	return s
}

// NewStaticStore returns a store serving t with no source. Load is a no-op.
func NewStaticStore(t *Table) *Store {
	s := &Store{logger: log.NewNop()}
	if t == nil {
		t = NewTable()
	}
	s.current.Store(t)
	return s
}

// Table returns the current table. Never nil.
func (s *Store) Table() *Table {
	return s.current.Load()
}

// Swap publishes t.
func (s *Store) Swap(t *Table) {
	if t == nil {
		t = NewTable()
	}
	s.current.Store(t)
}

// Load fetches and parses the artifact and publishes it.
//
// A missing artifact publishes an empty table and logs a warning; decoding
// stays non-functional until a later reload. Any other failure keeps the
// current table and returns the error.
func (s *Store) Load(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	data, err := s.source.Fetch(ctx)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("Log table file not found: "+s.source.String(), map[string]any{
			"source": s.source.String(),
		})
		s.Swap(NewTable())
		return nil
	}
	if err != nil {
		return err
	}

	t, err := Parse(data)
	if err != nil {
		return err
	}
	s.Swap(t)
	s.logger.Debug("log table loaded", map[string]any{
		"source":  s.source.String(),
		"entries": t.Len(),
	})
	return nil
}

// Reload is Load with reload accounting. Failures are logged and the
// previous table stays in place.
func (s *Store) Reload(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		s.collector.IncTableReloadFailure()
		s.logger.Error("log table reload failed", map[string]any{
			"source": s.source.String(),
			"error":  err.Error(),
		})
		return err
	}
	s.collector.IncTableReload()
	return nil
}
