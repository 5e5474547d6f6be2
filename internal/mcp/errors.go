// Package mcp exposes the vaultrank engine over the Model Context
// Protocol so AI clients can search the vault directly.
package mcp

import (
	"context"
	"errors"
	"fmt"

	vrerrors "github.com/vaultrank/vaultrank/internal/errors"
)

// Custom MCP error codes for vaultrank.
const (
	// ErrCodeIndexNotFound indicates no index exists for the vault.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeNoteNotFound indicates a note no longer exists on disk.
	ErrCodeNoteNotFound = -32004

	// ErrCodeNoteTooLarge indicates a note is too large to serve.
	ErrCodeNoteTooLarge = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrIndexNotFound indicates no index exists for the vault.
	ErrIndexNotFound = errors.New("index not found")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func mcpErr(code int, message string) *MCPError {
	return &MCPError{Code: code, Message: message}
}

// sentinelMap pairs known sentinel errors with their client-facing
// translation. Order matters only for readability; sentinels are
// disjoint.
var sentinelMap = []struct {
	target  error
	code    int
	message string
}{
	{ErrIndexNotFound, ErrCodeIndexNotFound, "Index not found. Run 'vaultrank ingest' first."},
	{context.DeadlineExceeded, ErrCodeTimeout, "Request timed out."},
	{context.Canceled, ErrCodeTimeout, "Request was canceled."},
	{ErrToolNotFound, ErrCodeMethodNotFound, "Tool not found."},
	{ErrInvalidParams, ErrCodeInvalidParams, "Invalid parameters."},
	{ErrResourceNotFound, ErrCodeMethodNotFound, "Resource not found."},
}

// MapError converts internal errors to MCP errors. Known error types map
// to specific codes; anything unrecognized surfaces as an internal error
// without leaking detail to the client.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var verr *vrerrors.VaultError
	if errors.As(err, &verr) {
		return mapVaultError(verr)
	}

	for _, entry := range sentinelMap {
		if errors.Is(err, entry.target) {
			return mcpErr(entry.code, entry.message)
		}
	}
	return mcpErr(ErrCodeInternalError, "Internal server error.")
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return mcpErr(ErrCodeInvalidParams, msg)
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return mcpErr(ErrCodeMethodNotFound, fmt.Sprintf("Tool '%s' not found.", name))
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return mcpErr(ErrCodeMethodNotFound, fmt.Sprintf("Resource '%s' not found.", uri))
}

// mapVaultError converts a VaultError to an MCPError. The suggestion rides
// along in the message so clients can show the recovery step.
func mapVaultError(verr *vrerrors.VaultError) *MCPError {
	message := verr.Message
	if verr.Suggestion != "" {
		message = verr.Message + " " + verr.Suggestion
	}

	return mcpErr(vaultErrorCode(verr), message)
}

// vaultErrorCode picks the MCP code for a VaultError, first by specific
// code then by category.
func vaultErrorCode(verr *vrerrors.VaultError) int {
	switch verr.Code {
	case vrerrors.ErrCodeFileNotFound:
		return ErrCodeNoteNotFound
	case vrerrors.ErrCodeFileTooLarge:
		return ErrCodeNoteTooLarge
	case vrerrors.ErrCodeCorruptIndex:
		return ErrCodeIndexNotFound
	case vrerrors.ErrCodeEmbeddingFailed:
		return ErrCodeEmbeddingFailed
	}

	switch verr.Category {
	case vrerrors.CategoryNetwork:
		return ErrCodeTimeout
	case vrerrors.CategoryValidation:
		return ErrCodeInvalidParams
	}
	return ErrCodeInternalError
}
