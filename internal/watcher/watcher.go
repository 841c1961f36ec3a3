package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	ragerrors "github.com/Aman-CERP/ragsearch/internal/errors"
)

// Operation is a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file.
	OpCreate Operation = iota
	// OpModify indicates a write to an existing file.
	OpModify
	// OpDelete indicates a removed or renamed-away file.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one of the database files.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// ReloadFunc rebuilds whatever depends on the database.
type ReloadFunc func(ctx context.Context) error

// Options configures the watcher.
type Options struct {
	// Debounce is the quiet period after the last write before reloading.
	Debounce time.Duration

	// PollInterval is the stat interval in polling mode.
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// Retry governs reload attempts that fail with a retryable error.
	Retry ragerrors.RetryConfig
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:     500 * time.Millisecond,
		PollInterval: 2 * time.Second,
		Retry:        ragerrors.DefaultRetryConfig(),
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.Retry.MaxRetries == 0 && o.Retry.InitialDelay == 0 {
		o.Retry = def.Retry
	}
	return o
}

// DBWatcher calls a ReloadFunc after the database changes.
type DBWatcher struct {
	path   string
	reload ReloadFunc
	opts   Options

	reloads  atomic.Uint64
	failures atomic.Uint64
}

// New creates a watcher for the SQLite database at dbPath.
func New(dbPath string, reload ReloadFunc, opts Options) *DBWatcher {
	return &DBWatcher{
		path:   dbPath,
		reload: reload,
		opts:   opts.WithDefaults(),
	}
}

// Reloads returns how many reloads have succeeded.
func (w *DBWatcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Failures returns how many reloads failed after retries.
func (w *DBWatcher) Failures() uint64 {
	return w.failures.Load()
}

// Run watches until ctx is done, then returns ctx.Err(). Reload failures are
// logged and do not stop the watcher.
func (w *DBWatcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	w.path = abs

	d := NewDebouncer(w.opts.Debounce)
	defer d.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for batch := range d.Output() {
			w.handle(ctx, batch)
		}
	}()

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(filepath.Dir(w.path))
			if err == nil {
				slog.Info("db_watcher_started", slog.String("path", w.path), slog.String("mode", "fsnotify"))
				err = w.watchFsnotify(ctx, fsw, d)
				d.Stop()
				<-done
				return err
			}
			_ = fsw.Close()
		}
		slog.Warn("fsnotify unavailable, polling database", slog.String("error", err.Error()))
	}

	slog.Info("db_watcher_started", slog.String("path", w.path), slog.String("mode", "polling"))
	err = w.watchPolling(ctx, d)
	d.Stop()
	<-done
	return err
}

func (w *DBWatcher) handle(ctx context.Context, batch []FileEvent) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := ragerrors.Retry(ctx, w.opts.Retry, func() error {
		return busy(w.reload(ctx))
	})
	if err != nil {
		w.failures.Add(1)
		re, ok := ragerrors.As(err)
		if !ok {
			re = ragerrors.New(ragerrors.ErrCodeIndexFailed, "index reload failed", err)
		}
		attrs := append([]slog.Attr{slog.Int("events", len(batch))}, ragerrors.LogAttrs(re)...)
		slog.LogAttrs(ctx, slog.LevelError, "index_reload_failed", attrs...)
		return
	}
	w.reloads.Add(1)
	slog.Info("index_reloaded",
		slog.Int("events", len(batch)),
		slog.Duration("duration", time.Since(start)))
}

// relevant reports whether name is the database or its write-ahead log.
// The -shm file changes on reads too and is ignored.
func (w *DBWatcher) relevant(name string) bool {
	base := filepath.Base(w.path)
	switch filepath.Base(name) {
	case base, base + "-wal", base + "-journal":
		return filepath.Dir(name) == filepath.Dir(w.path)
	}
	return false
}

// watchedFiles lists the paths polled for changes.
func (w *DBWatcher) watchedFiles() []string {
	return []string{w.path, w.path + "-wal", w.path + "-journal"}
}

func opFromFsnotify(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	}
	return 0, false
}

// busy marks lock contention with another writer as retryable.
func busy(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return ragerrors.New(ragerrors.ErrCodeStorageBusy, "database busy", err)
	}
	return err
}
