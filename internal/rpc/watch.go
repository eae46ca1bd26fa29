package rpc

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchLock watches dir for the removal of the LOCK file so a daemon that
// failed to acquire it (ErrAlreadyLocked) can retry once the prior owner
// exits, instead of polling. Grounded on the teacher pack's fsnotify usage
// for directory watching (Tejas242-sift, ehrlich-b-wingthing).
func WatchLock(ctx context.Context, dir string, log *slog.Logger) (<-chan struct{}, error) {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	released := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name == dir+"/LOCK" && (event.Op&fsnotify.Remove != 0 || event.Op&fsnotify.Rename != 0) {
					select {
					case released <- struct{}{}:
					default:
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("rpc lock watcher error", "error", err)
			}
		}
	}()
	return released, nil
}
