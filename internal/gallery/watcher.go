package gallery

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches the burst of events editors and deploy tools emit
// for a single file replacement.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a file-backed gallery into a Store whenever the file
// changes.
type Watcher struct {
	store    *Store
	source   *FileSource
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a Watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(store *Store, source *FileSource, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		source:   source,
		debounce: debounce,
		logger:   logger.Named("gallery_watcher"),
	}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file so atomic rename-into-place updates are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.source.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	w.logger.Info("watching gallery file", zap.String("path", target))

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isRelevant(event, target) {
				continue
			}
			// Every event pushes the reload back, so a file still being
			// written is only read once it has been quiet for w.debounce.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			_ = w.store.Reload(ctx, w.source, w.logger)
		}
	}
}

func isRelevant(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
