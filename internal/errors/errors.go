package errors

import (
	"errors"
	"fmt"
)

// VaultError is the structured error carried across vaultrank's
// subsystems: a stable code plus derived category, severity, and
// retryability, with optional detail pairs for logs.
type VaultError struct {
	Code      string
	Message   string
	Category  Category
	Severity  Severity
	Details   map[string]string
	Cause     error
	Retryable bool
	// Suggestion is a recovery hint surfaced to the user.
	Suggestion string
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is works against VaultError sentinels.
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	return ok && e.Code == t.Code
}

// WithDetail attaches a key-value pair for logging. Chainable.
func (e *VaultError) WithDetail(key, value string) *VaultError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches a recovery hint. Chainable.
func (e *VaultError) WithSuggestion(suggestion string) *VaultError {
	e.Suggestion = suggestion
	return e
}

// New builds a VaultError; category, severity, and the retryable flag
// all derive from the code.
func New(code string, message string, cause error) *VaultError {
	return &VaultError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap lifts an existing error into a VaultError, reusing its message.
// Wrapping nil returns nil.
func Wrap(code string, err error) *VaultError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError is a non-fatal configuration error: callers fall back to
// defaults and log it.
func ConfigError(message string, cause error) *VaultError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// WeightsError marks an unreadable or unparseable weight source.
func WeightsError(message string, cause error) *VaultError {
	return New(ErrCodeWeightsInvalid, message, cause)
}

// IOError is a file or disk error.
func IOError(message string, cause error) *VaultError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError is a (typically retryable) network error.
func NetworkError(message string, cause error) *VaultError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError is a rejected-input error.
func ValidationError(message string, cause error) *VaultError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ChunkIDError marks a malformed chunk identifier. These indicate a bug
// upstream and must never be silently stored.
func ChunkIDError(message string) *VaultError {
	return New(ErrCodeInvalidChunkID, message, nil)
}

// InternalError is an unexpected failure with no better category.
func InternalError(message string, cause error) *VaultError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err (or anything it wraps) is a VaultError
// flagged retryable.
func IsRetryable(err error) bool {
	var ve *VaultError
	return errors.As(err, &ve) && ve.Retryable
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var ve *VaultError
	return errors.As(err, &ve) && ve.Severity == SeverityFatal
}

// GetCode returns err's code, or "" for non-VaultErrors.
func GetCode(err error) string {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// GetCategory returns err's category, or "" for non-VaultErrors.
func GetCategory(err error) Category {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ""
}
