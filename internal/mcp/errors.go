// Package mcp exposes vault search and indexing as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
)

// JSON-RPC error codes used by tool handlers.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
	// ErrCodeTimeout indicates the request deadline passed.
	ErrCodeTimeout = -32003
)

// ToolError carries a JSON-RPC error code with its message.
type ToolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError reports malformed tool input.
func NewInvalidParamsError(message string) *ToolError {
	return &ToolError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts internal failures to protocol errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Code: ErrCodeTimeout, Message: "request timed out"}
	}
	return &ToolError{Code: ErrCodeInternalError, Message: err.Error()}
}
