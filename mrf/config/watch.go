package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watches a configuration file and publishes every successfully parsed version to the store. Invalid versions are logged and ignored, leaving the previous configuration in effect.
//
// The parent directory is watched rather than the file itself, so that editors and config-management tools which replace the file (rename over it) are handled. Blocks until the context is cancelled.
func WatchFile(ctx context.Context, path string, store *Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", "config-watcher", "path", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			b, err := os.ReadFile(abs)
			if err != nil {
				logger.Error("failed to read MRF config, keeping previous version", "err", err)
				continue
			}
			// truncation is reported as a write before the new content lands
			if len(bytes.TrimSpace(b)) == 0 {
				continue
			}
			cfg, err := parseFile(abs, b)
			if err != nil {
				logger.Error("failed to reload MRF config, keeping previous version", "err", err)
				continue
			}
			if err := store.Update(cfg); err != nil {
				logger.Error("rejected reloaded MRF config", "err", err)
				continue
			}
			logger.Info("reloaded MRF config")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "err", err)
		}
	}
}
