// Package server hosts process-lifetime glue that sits above the wire
// protocol handlers: today, the hot-reload file watcher.
package server

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/yamlbase/yamlbase/internal/storage"
	"github.com/yamlbase/yamlbase/internal/yamlschema"
)

// WatchAndReload watches path's containing directory and, on every write
// to path itself, re-parses the YAML schema and swaps it into s behind a
// writer lease (spec.md §1's "hot-reload file watching", implemented per
// SPEC_FULL.md §6). A parse failure is logged and the previous schema
// keeps serving. Returns when ctx is canceled or the watcher's channels
// close.
func WatchAndReload(ctx context.Context, path string, s *storage.Storage, log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
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
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reload(path, s, log)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if log != nil {
				log.Error("hot-reload watcher error", "error", err)
			}
		}
	}
}

func reload(path string, s *storage.Storage, log *slog.Logger) {
	db, _, err := yamlschema.Load(path)
	if err != nil {
		if log != nil {
			log.Error("hot-reload: schema reload failed, keeping previous snapshot", "file", path, "error", err)
		}
		return
	}

	lease := s.Writer()
	lease.Replace(db)
	lease.Release()

	if log != nil {
		log.Info("hot-reload: schema reloaded", "file", path)
	}
}
