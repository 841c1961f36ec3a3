package errors

import (
	stderrors "errors"
	"fmt"
)

// RagError is the structured error type surfaced by ragsearch.
// It carries enough context for logging, CLI output and MCP error mapping.
type RagError struct {
	// Code is the unique error code (e.g., "ERR_403_QUERY_SYNTAX").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable reports whether the caller may retry. The engine itself never retries.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RagError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause so errors.As can reach typed causes.
func (e *RagError) Unwrap() error {
	return e.Cause
}

// Is matches another RagError by code.
func (e *RagError) Is(target error) bool {
	if t, ok := target.(*RagError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RagError) WithDetail(key, value string) *RagError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RagError) WithSuggestion(suggestion string) *RagError {
	e.Suggestion = suggestion
	return e
}

// New creates a RagError. Category, severity and retryable flag derive from the code.
func New(code string, message string, cause error) *RagError {
	return &RagError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RagError from an existing error, reusing its message.
func Wrap(code string, err error) *RagError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RagError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates an error for an unavailable or failing store.
func StorageError(message string, cause error) *RagError {
	return New(ErrCodeStorageUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RagError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RagError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first RagError in err's chain.
func As(err error) (*RagError, bool) {
	var re *RagError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if re, ok := As(err); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if re, ok := As(err); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" when err is not a RagError.
func GetCode(err error) string {
	if re, ok := As(err); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err is not a RagError.
func GetCategory(err error) Category {
	if re, ok := As(err); ok {
		return re.Category
	}
	return ""
}
