package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wanthalf/zyncoder/logging"
)

// settle coalesces the burst of events editors produce when saving.
const settle = 100 * time.Millisecond

// Watch reloads the file at path whenever it changes and hands each valid
// result to onChange. Invalid files are logged and skipped. Watch blocks until
// ctx is done or the watcher fails.
//
// The parent directory is watched so that editors replacing the file by
// rename are still seen.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	log := logging.Get(logging.CONFIG)
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	log.Info("Watching config", "path", path)

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("Config changed", "path", path, "op", ev.Op.String())
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("Config watcher failed", "err", err)
			return err
		case <-timer.C:
			c, err := Load(path)
			if err != nil {
				log.Error("Ignoring invalid config", "path", path, "err", err)
				continue
			}
			log.Info("Config reloaded", "path", path, "pins", len(c.Pins))
			onChange(c)
		}
	}
}
