package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with the freshly loaded Config every time the file at
// path is written or replaced. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that rename
// a temporary file over path keep being seen. A config that fails to load is
// logged and skipped; the previous one stays in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("relay config: watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("relay config: watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("relay config: watch %s: %w", filepath.Dir(path), err)
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !touches(event, path) {
				continue
			}
			reload(path, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// touches reports whether event leaves new content at path. A rename onto
// path shows up as Create; Remove and Rename of path leave nothing to load.
func touches(event fsnotify.Event, path string) bool {
	if filepath.Clean(event.Name) != path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func reload(path string, onChange func(*Config)) {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
		return
	}
	slog.Info("config: reloaded", "path", path, "log_level", cfg.Relay.LogLevel)
	onChange(cfg)
}
