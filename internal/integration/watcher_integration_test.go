package integration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
	"github.com/Aman-CERP/ragsearch/internal/watcher"
)

// TestWatcher_ReloadsAfterExternalWrite covers the serve --watch path: one
// handle serves searches while a second handle writes new embeddings.
func TestWatcher_ReloadsAfterExternalWrite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			// Given: a serving registry over a database with one chunk
			dbPath := filepath.Join(t.TempDir(), "rag.db")
			reader, err := store.Open(ctx, store.Config{Path: dbPath})
			require.NoError(t, err)
			defer func() { _ = reader.Close() }()

			doc := &store.Document{ID: "d1", Source: "wiki"}
			require.NoError(t, reader.PutDocument(ctx, doc))
			require.NoError(t, reader.PutChunks(ctx, []*store.Chunk{{ID: "c1", DocumentID: "d1", Text: "hello"}}))

			cfg := registry.DefaultConfig()
			cfg.Index.Type = vector.TypeFlat
			reg, err := registry.New(reader, cfg)
			require.NoError(t, err)
			defer func() { _ = reg.Close() }()
			require.NoError(t, reg.Load(ctx))

			_, err = reg.Index("late", store.KindBody)
			require.Error(t, err)

			opts := watcher.DefaultOptions()
			opts.Debounce = 50 * time.Millisecond
			opts.PollInterval = 50 * time.Millisecond
			opts.ForcePolling = polling
			w := watcher.New(dbPath, reg.Reload, opts)

			wctx, stop := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- w.Run(wctx) }()
			time.Sleep(200 * time.Millisecond)

			// When: another handle writes embeddings for a new model
			writer, err := store.Open(ctx, store.Config{Path: dbPath})
			require.NoError(t, err)
			require.NoError(t, writer.PutEmbedding(ctx, &store.Embedding{
				ChunkID: "c1", Kind: store.KindBody, Model: "late", Dim: 2, Vector: []float32{1, 0},
			}))
			require.NoError(t, writer.Close())

			// Then: the serving registry picks the model up
			assert.Eventually(t, func() bool {
				idx, err := reg.Index("late", store.KindBody)
				return err == nil && idx.Len() == 1
			}, 10*time.Second, 50*time.Millisecond)
			assert.GreaterOrEqual(t, w.Reloads(), uint64(1))

			stop()
			err = <-done
			assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected error: %v", err)
		})
	}
}
