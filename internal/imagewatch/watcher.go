// Package imagewatch reports changes to the image directory, including files
// dropped in by hand rather than uploaded through the API.
package imagewatch

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called for every change to a matching image.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, name string)

// Watch starts an fsnotify watcher on dir and processes change events until
// ctx is cancelled. Only names accepted by match (all names when nil) are
// reported.
func Watch(ctx context.Context, dir string, match func(name string) bool, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("imagewatch: started", slog.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			logger.Info("imagewatch: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if match != nil && !match(name) {
				continue
			}

			var kind string
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = "created"
			case ev.Op&fsnotify.Write != 0:
				kind = "updated"
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old name; the new name arrives as Create.
				kind = "deleted"
			default:
				continue
			}
			logger.Debug("imagewatch: change", slog.String("name", name), slog.String("op", kind))
			if cb != nil {
				cb(kind, name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("imagewatch: error", slog.String("error", watchErr.Error()))
		}
	}
}
