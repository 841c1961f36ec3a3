package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragsearch/internal/errors"
	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/search"
	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid weights", fmt.Errorf("wrap: %w", search.ErrInvalidWeights), ErrCodeInvalidParams},
		{"dimension mismatch", &vector.DimensionMismatchError{Expected: 3, Got: 2}, ErrCodeInvalidParams},
		{"cross model", registry.ErrCrossModel, ErrCodeInvalidParams},
		{"model not found", &registry.ModelNotFoundError{Model: "m", Kind: store.KindBody}, ErrCodeModelNotFound},
		{"chunk not found", store.ErrNotFound, ErrCodeNotFound},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"store closed", store.ErrClosed, ErrCodeStorageUnavailable},
		{"config", ragerrors.New(ragerrors.ErrCodeConfigInvalid, "bad", nil), ErrCodeInternalError},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("bad")
	assert.Same(t, orig, MapError(fmt.Errorf("wrapped: %w", orig)))
}

func TestMapError_InternalPrefix(t *testing.T) {
	got := MapError(errors.New("boom"))
	assert.Equal(t, "Internal server error: boom", got.Message)
}

func TestMapError_LogsServerSideFailures(t *testing.T) {
	// Given: a JSON default logger
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// When: mapping a bad request, then a closed store
	MapError(search.ErrInvalidWeights)
	assert.Zero(t, buf.Len())
	MapError(store.ErrClosed)

	// Then: only the storage failure is logged, with its code
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "mcp_request_failed", rec["msg"])
	assert.Equal(t, ragerrors.ErrCodeStorageUnavailable, rec["error_code"])
	assert.Equal(t, "STORAGE", rec["category"])
}
