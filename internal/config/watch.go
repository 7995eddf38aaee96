package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tasknerd/internal/logging"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config at path whenever it is written and passes each
// valid result to fn. The parent directory is watched so atomic
// rename-over saves are seen. Invalid files are logged and skipped. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	logging.Get(logging.CategoryConfig).Info("Watching config file %s", target)

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryConfig).Error("Config watcher error: %v", err)

		case <-timer.C:
			cfg, err := Load(target)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				logging.Get(logging.CategoryConfig).Warn("Ignoring config change: %v", err)
				continue
			}
			logging.Get(logging.CategoryConfig).Info("Config reloaded from %s", target)
			fn(cfg)
		}
	}
}
