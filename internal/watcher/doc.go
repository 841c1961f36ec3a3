// Package watcher reloads the vector indexes when another process writes to
// the database.
//
// It watches the database file and its WAL with fsnotify, falling back to
// polling file stats where fsnotify is unavailable (network mounts, some
// container volumes). Bursts of writes are debounced into one reload, and a
// reload that fails because the database is busy is retried with backoff.
//
// Usage:
//
//	w := watcher.New(cfg.Store.Path, reg.Reload, watcher.DefaultOptions())
//	go func() { _ = w.Run(ctx) }()
package watcher
