// Package mcp serves the search engine over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ragerrors "github.com/Aman-CERP/ragsearch/internal/errors"
	"github.com/Aman-CERP/ragsearch/internal/search"
)

// Custom MCP error codes.
const (
	// ErrCodeStorageUnavailable indicates the database or an index is unusable.
	ErrCodeStorageUnavailable = -32001

	// ErrCodeModelNotFound indicates no vectors are indexed for the requested model.
	ErrCodeModelNotFound = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates a chunk or document does not exist.
	ErrCodeNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts engine and store errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var me *MCPError
	if errors.As(err, &me) {
		return me
	}
	if errors.Is(err, context.Canceled) {
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	re := search.Classify(err)
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", re.Message, re.Suggestion)
	}

	switch re.Code {
	case ragerrors.ErrCodeModelNotFound:
		return &MCPError{Code: ErrCodeModelNotFound, Message: message}
	case ragerrors.ErrCodeNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case ragerrors.ErrCodeSearchTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: "Search timed out."}
	}

	if re.Category == ragerrors.CategoryValidation {
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	}

	slog.LogAttrs(context.Background(), slog.LevelError, "mcp_request_failed", ragerrors.LogAttrs(re)...)
	if re.Category == ragerrors.CategoryStorage {
		return &MCPError{Code: ErrCodeStorageUnavailable, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error: " + message}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}
