package watcher

import (
	"context"
	"os"
	"time"
)

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func snapshot(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// diff returns the event that turns before into after, if any.
func diff(path string, before, after fileSnapshot) (FileEvent, bool) {
	ev := FileEvent{Path: path, Timestamp: time.Now()}
	switch {
	case !before.exists && after.exists:
		ev.Operation = OpCreate
	case before.exists && !after.exists:
		ev.Operation = OpDelete
	case after.exists && (after.modTime != before.modTime || after.size != before.size):
		ev.Operation = OpModify
	default:
		return FileEvent{}, false
	}
	return ev, true
}

func (w *DBWatcher) watchPolling(ctx context.Context, d *Debouncer) error {
	files := w.watchedFiles()
	state := make(map[string]fileSnapshot, len(files))
	for _, f := range files {
		state[f] = snapshot(f)
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, f := range files {
				now := snapshot(f)
				if ev, changed := diff(f, state[f], now); changed {
					d.Add(ev)
				}
				state[f] = now
			}
		}
	}
}
