package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/i474232898/cycle-tracker/internal/logger"
)

// WatchPolicy monitors path and calls onChange with the reloaded policy each
// time the file is written. It runs until ctx is cancelled.
//
// A failed reload is logged and the previous policy stays active.
func WatchPolicy(ctx context.Context, path string, onChange func(*PredictionConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log := logger.Log.WithField("path", path)
	log.Info("config: watching policy file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadPolicy(path)
			if err != nil {
				log.WithError(err).Error("config: policy reload failed, keeping previous policy")
				continue
			}

			log.Info("config: policy reloaded")
			onChange(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("config: watcher error")
		}
	}
}
