package groups

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last write before
// reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the store whenever its database file is written, until ctx
// is done. onReload, if set, is called after every reload attempt with its
// result. Watch returns an error only if the watcher cannot be started.
//
// The parent directory is watched rather than the file so that editors that
// replace the file on save keep triggering reloads.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger, onReload func(error)) error {
	if s.path == "" {
		return fmt.Errorf("groups: store has no database file")
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("groups: creating watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("groups: watching %s: %w", dir, err)
	}

	name := filepath.Base(s.path)
	go func() {
		defer watcher.Close()

		var (
			mu       sync.Mutex
			debounce *time.Timer
		)
		defer func() {
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			mu.Unlock()
		}()

		reload := func() {
			if ctx.Err() != nil {
				return
			}
			err := s.Reload()
			if err != nil {
				logger.Warn("groups reload failed", "path", s.path, "error", err)
			} else {
				logger.Info("groups reloaded", "path", s.path, "count", len(s.List()))
			}
			if onReload != nil {
				onReload(err)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(DefaultDebounce, reload)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("groups watcher error", "error", err)
			}
		}
	}()
	return nil
}
