// Package output provides consistent terminal output formatting for
// one-shot CLI messages. Ingest progress and search results have their
// own renderers in internal/ui.
package output

import (
	"fmt"
	"io"
	"strings"
)

const (
	iconSuccess = "✅"
	iconWarning = "⚠️"
	iconError   = "❌"

	// contIndent aligns continuation lines under an iconed line.
	contIndent = "   "
)

// Writer wraps an io.Writer with message formatting helpers.
type Writer struct {
	out io.Writer
}

// New creates a Writer targeting out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a message with a leading icon. An empty icon indents
// the message to align with iconed lines.
func (w *Writer) Status(icon, msg string) {
	prefix := contIndent
	if icon != "" {
		prefix = icon + " "
	}
	fmt.Fprintln(w.out, prefix+msg)
}

// Statusf prints a formatted message with a leading icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(iconSuccess, msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Statusf(iconSuccess, format, args...)
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(iconWarning, msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Statusf(iconWarning, format, args...)
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(iconError, msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Statusf(iconError, format, args...)
}

// Code prints a block of text indented as code.
func (w *Writer) Code(code string) {
	for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		fmt.Fprintln(w.out, "    "+line)
	}
}

// Newline prints a blank line.
func (w *Writer) Newline() {
	fmt.Fprintln(w.out)
}
