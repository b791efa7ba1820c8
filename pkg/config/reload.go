package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc is invoked with the freshly loaded Config every time config.toml
// changes on disk. Returning an error only logs; it never stops the watch.
type ReloadFunc func(*Config) error

// WatchReload watches the target .mnemo/config.toml for writes and invokes fn
// with the newly loaded config on each change, per SPEC_FULL.md §10.3: tunables
// like dedup thresholds and search weights hot-reload without restarting the
// long-running pipeline worker. Blocks until ctx is done or the watcher errors.
func (c *Configer) WatchReload(ctx context.Context, log *zap.Logger, fn ReloadFunc) error {
	if c.targetPath == "" {
		return fmt.Errorf("cannot watch reload: no config target resolved")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(c.targetPath)); err != nil {
		return fmt.Errorf("watching config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.targetPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := c.LoadConfig()
			if err != nil {
				log.Warn("config: reload failed, keeping previous values", zap.Error(err))
				continue
			}
			if err := fn(cfg); err != nil {
				log.Warn("config: reload callback failed", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config watcher error: %w", err)
		}
	}
}
