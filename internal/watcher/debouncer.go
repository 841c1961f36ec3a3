package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces events that arrive within a window of each other and
// emits them as one batch once the window passes with no new event. Events
// for the same path merge:
//   - CREATE then DELETE cancel out
//   - DELETE then CREATE become MODIFY
//   - otherwise the latest operation wins, except a CREATE stays a CREATE
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 4),
	}
}

// Add records ev and restarts the window.
func (d *Debouncer) Add(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[ev.Path]; ok {
		switch {
		case prev.Operation == OpCreate && ev.Operation == OpDelete:
			delete(d.pending, ev.Path)
		case prev.Operation == OpDelete && ev.Operation == OpCreate:
			ev.Operation = OpModify
			d.pending[ev.Path] = ev
		case prev.Operation == OpCreate:
			prev.Timestamp = ev.Timestamp
			d.pending[ev.Path] = prev
		default:
			d.pending[ev.Path] = ev
		}
	} else {
		d.pending[ev.Path] = ev
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}
	batch := make([]FileEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	d.pending = make(map[string]FileEvent)

	select {
	case d.output <- batch:
	default:
		// A reload is already queued and will see these writes too.
		slog.Debug("debouncer output full, dropping batch", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of batches. It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes the output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
