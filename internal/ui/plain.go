package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	source string
	stage  Stage
	last   int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, source: cfg.Source, stage: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	if r.source != "" {
		_, _ = fmt.Fprintf(r.out, "Ingesting %s\n", r.source)
	}
	return nil
}

// UpdateProgress implements Renderer. Within a stage of known size it prints
// at most one line per 10%.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.stage {
		r.stage = event.Stage
		r.last = -1
	}

	msg := event.Message
	if msg == "" {
		msg = event.Item
	}

	if event.Total <= 0 {
		if msg != "" {
			_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
		}
		return
	}

	decile := event.Current * 10 / event.Total
	if decile == r.last && event.Current != event.Total {
		return
	}
	r.last = decile
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Line > 0 {
		_, _ = fmt.Fprintf(r.out, "%s: line %d: %v\n", prefix, event.Line, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d documents, %d chunks, %d embeddings in %s",
		stats.Documents, stats.Chunks, stats.Embeddings, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)
	if len(stats.Models) > 0 {
		_, _ = fmt.Fprintf(r.out, "Models: %s\n", strings.Join(stats.Models, ", "))
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
