package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ragerrors "github.com/Aman-CERP/ragsearch/internal/errors"
	"github.com/Aman-CERP/ragsearch/internal/ingest"
	"github.com/Aman-CERP/ragsearch/internal/ui"
)

type indexOptions struct {
	batchSize       int
	continueOnError bool
	plain           bool
	noColor         bool
	wait            time.Duration
}

func newIndexCmd(g *globalOptions) *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index <file.jsonl>",
		Short: "Load documents, chunks and embeddings from JSON lines",
		Long: `Load documents, chunks and embeddings into the database.

Each input line holds exactly one record:
  {"document": {"id": "d1", "source": "wiki", "title": "..."}}
  {"chunk": {"id": "c1", "document_id": "d1", "ordinal": 0, "text": "..."}}
  {"embedding": {"chunk_id": "c1", "model": "minilm", "vector": [...]}}

Documents must precede their chunks, and chunks their embeddings. Use '-'
to read from stdin. Only one index run may write a database at a time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, g, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.batchSize, "batch-size", ingest.DefaultBatchSize, "Chunks per write transaction")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Skip invalid lines instead of stopping")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no TUI)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().DurationVar(&opts.wait, "wait", 0, "Wait this long for another index run to finish")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts *indexOptions, path string) error {
	cfg, err := g.load(false)
	if err != nil {
		return err
	}

	if persistent(cfg.Store.Path) {
		lock := ingest.NewWriterLock(cfg.Store.Path)
		if err := acquire(ctx, lock, opts.wait); err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()
	}

	var (
		in    io.Reader
		total int
	)
	if path == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer func() { _ = f.Close() }()

		if total, err = ingest.CountRecords(f); err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind input: %w", err)
		}
		in = f
	}

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
		ui.WithSource(path)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageReading, Total: total, Message: "reading records"})

	done := 0
	res, ingestErr := ingest.Ingest(ctx, in, a.store, ingest.Options{
		BatchSize:       opts.batchSize,
		DefaultModel:    cfg.Store.DefaultModel,
		ContinueOnError: opts.continueOnError,
		OnRecord: func(ev ingest.Event) {
			done++
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageWriting,
				Current: done,
				Total:   total,
				Item:    ev.ID,
				Message: ev.Kind,
			})
		},
	})
	for _, le := range res.Errors {
		renderer.AddError(ui.ErrorEvent{Line: le.Line, Err: le.Err, IsWarn: opts.continueOnError})
	}
	if ingestErr != nil {
		renderer.AddError(ui.ErrorEvent{Err: ingestErr})
		return ingestErr
	}

	// Building every index proves the stored vectors load.
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Current: done, Total: total, Message: "building vector indexes"})
	if err := a.registry.Load(ctx); err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		return err
	}

	stats := ui.CompletionStats{
		Documents:  res.Documents,
		Chunks:     res.Chunks,
		Embeddings: res.Embeddings,
		Models:     res.Models,
		Duration:   res.Duration,
	}
	if opts.continueOnError {
		stats.Warnings = len(res.Errors)
	} else {
		stats.Errors = len(res.Errors)
	}
	renderer.Complete(stats)
	return nil
}

// acquire takes the writer lock, waiting up to wait when it is positive.
func acquire(ctx context.Context, lock *ingest.WriterLock, wait time.Duration) error {
	var err error
	if wait > 0 {
		wctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		err = lock.LockContext(wctx)
	} else {
		err = lock.TryLock()
	}
	if errors.Is(err, ingest.ErrLocked) {
		return ragerrors.New(ragerrors.ErrCodeStorageBusy, err.Error(), err).
			WithDetail("lock", lock.Path()).
			WithSuggestion("Wait for the other index run, or pass --wait to queue behind it")
	}
	return err
}

// persistent reports whether path names an on-disk database.
func persistent(path string) bool {
	return path != "" && path != ":memory:"
}
