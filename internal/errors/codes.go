// Package errors provides structured error handling for ragsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (database, index files)
//   - 4XX: Validation errors (bad queries, vectors, models)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates database or index storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageUnavailable = "ERR_201_STORAGE_UNAVAILABLE"
	ErrCodeStorageBusy        = "ERR_202_STORAGE_BUSY"
	ErrCodeCorruptIndex       = "ERR_205_CORRUPT_INDEX"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQuerySyntax       = "ERR_403_QUERY_SYNTAX"
	ErrCodeInvalidWeights    = "ERR_404_INVALID_WEIGHTS"
	ErrCodeQueryTooLong      = "ERR_405_QUERY_TOO_LONG"
	ErrCodeDuplicateOrdinal  = "ERR_406_DUPLICATE_ORDINAL"
	ErrCodeModelNotFound     = "ERR_407_MODEL_NOT_FOUND"
	ErrCodeCrossModel        = "ERR_408_CROSS_MODEL"
	ErrCodeNotFound          = "ERR_409_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeSearchFailed       = "ERR_503_SEARCH_FAILED"
	ErrCodeSearchTimeout      = "ERR_504_SEARCH_TIMEOUT"
	ErrCodeIndexFailed        = "ERR_505_INDEX_FAILED"
	ErrCodeVectorSearchFailed = "ERR_506_VECTOR_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_403_..." -> '4'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStorageUnavailable:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStorageBusy, ErrCodeSearchTimeout:
		return true
	default:
		return false
	}
}
