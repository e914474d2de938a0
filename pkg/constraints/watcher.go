package constraints

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for further changes before
// invalidating the cache.
const DefaultDebounce = 200 * time.Millisecond

// Watch invalidates r whenever the catalog file at path is written, created,
// removed or renamed. The parent directory is watched so that editors which
// replace the file atomically are observed. Watch blocks until ctx is done.
func Watch(ctx context.Context, r *Registry, path string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("constraints watch: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("constraints watch: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("constraints watch %s: %w", filepath.Dir(abs), err)
	}
	r.logger.Info("watching constraint catalog", "path", abs)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			r.InvalidateCache()
			r.logger.Info("constraint catalog changed, cache invalidated", "path", abs)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("constraint watcher error", "error", err)
		}
	}
}
