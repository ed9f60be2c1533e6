package logtable

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/justapithecus/mk0link/log"
)

// DefaultSettle is how long the watcher waits after the last write event
// before reloading, so a table written in several chunks is read once.
const DefaultSettle = 100 * time.Millisecond

// Watcher reloads a Store whenever its artifact file is written.
//
// The parent directory is watched rather than the file so that editors and
// build tools that replace the file by rename are still observed.
type Watcher struct {
	store  *Store
	path   string
	settle time.Duration
	logger *log.Logger
}

// NewWatcher creates a watcher for the file at path. settle <= 0 uses
// DefaultSettle.
func NewWatcher(store *Store, path string, settle time.Duration, logger *log.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Watcher{store: store, path: filepath.Clean(path), settle: settle, logger: logger}
}

// Run watches until ctx is done. It returns nil on cancellation and an error
// only if the watch cannot be established.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	// settled is nil until a write arrives, then fires once writes stop.
	var settled <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				settled = time.After(w.settle)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("log table watch error", map[string]any{
				"path":  w.path,
				"error": err.Error(),
			})

		case <-settled:
			settled = nil
			w.logger.Info("Sources changed. Reloading...", map[string]any{
				"path": w.path,
			})
			_ = w.store.Reload(ctx)
		}
	}
}
