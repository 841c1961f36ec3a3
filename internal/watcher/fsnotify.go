package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

func (w *DBWatcher) watchFsnotify(ctx context.Context, fsw *fsnotify.Watcher, d *Debouncer) error {
	defer func() { _ = fsw.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev.Name) {
				continue
			}
			op, ok := opFromFsnotify(ev.Op)
			if !ok {
				continue
			}
			d.Add(FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify error", slog.String("error", err.Error()))
		}
	}
}
