package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// asVault coerces any error into a VaultError for rendering. Plain
// errors get the internal code.
func asVault(err error) *VaultError {
	if ve, ok := err.(*VaultError); ok {
		return ve
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI renders an error for terminal display: message first,
// hint when there is one, code last.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	ve := asVault(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", ve.Message)
	if ve.Suggestion != "" {
		fmt.Fprintf(&b, "  Hint: %s\n", ve.Suggestion)
	}
	fmt.Fprintf(&b, "  Code: %s\n", ve.Code)
	return b.String()
}

// FormatJSON renders an error as JSON for machine consumption.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}
	ve := asVault(err)

	payload := struct {
		Code       string            `json:"code"`
		Message    string            `json:"message"`
		Category   string            `json:"category"`
		Severity   string            `json:"severity"`
		Details    map[string]string `json:"details,omitempty"`
		Suggestion string            `json:"suggestion,omitempty"`
		Cause      string            `json:"cause,omitempty"`
		Retryable  bool              `json:"retryable"`
	}{
		Code:       ve.Code,
		Message:    ve.Message,
		Category:   string(ve.Category),
		Severity:   string(ve.Severity),
		Details:    ve.Details,
		Suggestion: ve.Suggestion,
		Retryable:  ve.Retryable,
	}
	if ve.Cause != nil {
		payload.Cause = ve.Cause.Error()
	}
	return json.Marshal(payload)
}

// FormatForLog flattens an error into slog attribute pairs. Detail keys
// get a detail_ prefix so they cannot shadow the fixed fields.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ve, ok := err.(*VaultError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	attrs := map[string]any{
		"error_code": ve.Code,
		"message":    ve.Message,
		"category":   string(ve.Category),
		"severity":   string(ve.Severity),
		"retryable":  ve.Retryable,
	}
	if ve.Cause != nil {
		attrs["cause"] = ve.Cause.Error()
	}
	if ve.Suggestion != "" {
		attrs["suggestion"] = ve.Suggestion
	}
	for k, v := range ve.Details {
		attrs["detail_"+k] = v
	}
	return attrs
}
