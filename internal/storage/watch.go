package storage

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig reloads the router whenever the sites file at path is written.
// A file that fails to parse leaves the previous table in place. It runs
// until ctx is cancelled.
func (r *Router) WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	r.log.Info("watching sites config", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors save atomically via rename, so Create counts too.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				r.log.Error("sites config reload failed, keeping previous", "path", path, "error", err)
				continue
			}
			r.Reload(cfg)
			r.log.Info("sites config reloaded", "path", path, "sites", len(cfg.Sites))
			_ = watcher.Add(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("sites config watcher error", "error", err)
		}
	}
}
