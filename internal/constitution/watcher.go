package constitution

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last change before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store when its manifest file changes on disk.
// It watches the parent directory so editors that replace the file by
// rename are still observed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	target   string
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a watcher for the store's manifest path.
func NewWatcher(store *Store, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store.Path() == "" {
		return nil, fmt.Errorf("constitution: store has no manifest path to watch")
	}

	target, err := filepath.Abs(store.Path())
	if err != nil {
		return nil, fmt.Errorf("constitution: resolve manifest path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("constitution: create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return nil, fmt.Errorf("constitution: watch %q: %w", filepath.Dir(target), err)
	}

	return &Watcher{
		watcher:  w,
		store:    store,
		target:   target,
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, func() {
				_ = w.store.Reload()
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("constitution watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != w.target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}
