package search

import (
	"context"
	"errors"
	"fmt"

	ragerrors "github.com/Aman-CERP/ragsearch/internal/errors"
	"github.com/Aman-CERP/ragsearch/internal/lexical"
	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

var (
	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("nil dependency")

	// ErrInvalidWeights is returned for negative or non-finite weights.
	ErrInvalidWeights = errors.New("weights must be finite and >= 0")

	// ErrInvalidThreshold is returned for a threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

	// ErrEmptyVector is returned when a vector search has no query vector.
	ErrEmptyVector = errors.New("query vector is empty")

	// ErrQueryTooLong is returned when the raw query exceeds MaxQueryLength.
	ErrQueryTooLong = errors.New("query too long")

	// ErrVectorSearch wraps every failure of the vector leg.
	ErrVectorSearch = errors.New("vector search failed")
)

// Classify wraps err in a RagError whose code names the failure. Errors that
// are already RagErrors pass through.
func Classify(err error) *ragerrors.RagError {
	if err == nil {
		return nil
	}
	if re, ok := ragerrors.As(err); ok {
		return re
	}

	var (
		syntaxErr   *lexical.SyntaxError
		dimErr      *vector.DimensionMismatchError
		notFoundErr *registry.ModelNotFoundError
		dupErr      *store.DuplicateOrdinalError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return ragerrors.New(ragerrors.ErrCodeQuerySyntax, syntaxErr.Error(), err).
			WithDetail("position", fmt.Sprint(syntaxErr.Pos)).
			WithSuggestion(`Close quotes, put terms on both sides of OR, and follow "-" with a term`)
	case errors.As(err, &dimErr):
		return ragerrors.New(ragerrors.ErrCodeDimensionMismatch, dimErr.Error(), err).
			WithDetail("expected", fmt.Sprint(dimErr.Expected)).
			WithDetail("got", fmt.Sprint(dimErr.Got)).
			WithSuggestion("Embed the query with the model the index was built from")
	case errors.As(err, &notFoundErr):
		return ragerrors.New(ragerrors.ErrCodeModelNotFound, notFoundErr.Error(), err).
			WithDetail("model", notFoundErr.Model).
			WithSuggestion("Run 'ragsearch models' to list indexed models")
	case errors.Is(err, registry.ErrCrossModel):
		return ragerrors.New(ragerrors.ErrCodeCrossModel, err.Error(), err)
	case errors.As(err, &dupErr):
		return ragerrors.New(ragerrors.ErrCodeDuplicateOrdinal, dupErr.Error(), err)
	case errors.Is(err, ErrInvalidWeights):
		return ragerrors.New(ragerrors.ErrCodeInvalidWeights, err.Error(), err)
	case errors.Is(err, ErrQueryTooLong):
		return ragerrors.New(ragerrors.ErrCodeQueryTooLong, err.Error(), err)
	case errors.Is(err, ErrInvalidThreshold), errors.Is(err, ErrEmptyVector),
		errors.Is(err, vector.ErrZeroVector), errors.Is(err, store.ErrInvalidChunk):
		return ragerrors.ValidationError(err.Error(), err)
	case errors.Is(err, store.ErrNotFound):
		return ragerrors.New(ragerrors.ErrCodeNotFound, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return ragerrors.New(ragerrors.ErrCodeSearchTimeout, "search timed out", err)
	case errors.Is(err, store.ErrClosed), errors.Is(err, vector.ErrIndexClosed):
		return ragerrors.StorageError(err.Error(), err)
	case errors.Is(err, ErrVectorSearch):
		return ragerrors.New(ragerrors.ErrCodeVectorSearchFailed, err.Error(), err)
	default:
		return ragerrors.New(ragerrors.ErrCodeSearchFailed, err.Error(), err)
	}
}

// isRequestError reports errors caused by the request itself, which degraded
// mode never hides.
func isRequestError(err error) bool {
	var (
		dimErr      *vector.DimensionMismatchError
		notFoundErr *registry.ModelNotFoundError
	)
	return errors.As(err, &dimErr) ||
		errors.As(err, &notFoundErr) ||
		errors.Is(err, registry.ErrCrossModel) ||
		errors.Is(err, vector.ErrZeroVector) ||
		errors.Is(err, ErrEmptyVector) ||
		errors.Is(err, ErrInvalidThreshold)
}
