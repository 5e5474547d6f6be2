package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes line-oriented progress suitable for pipes, CI
// logs, and non-TTY output. No ANSI codes, no cursor movement.
type PlainRenderer struct {
	cfg Config
	out io.Writer

	mu        sync.Mutex
	started   bool
	lastStage Stage
	lastFile  string
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		cfg:       cfg,
		out:       cfg.Output,
		lastStage: Stage(-1),
	}
}

// Start prints the ingest header.
func (r *PlainRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	r.started = true

	if r.cfg.VaultDir != "" {
		fmt.Fprintf(r.out, "Ingesting vault: %s\n", r.cfg.VaultDir)
	}
	return nil
}

// UpdateProgress prints a progress line. Repeated updates for the same
// file are collapsed to keep CI logs readable.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.lastStage {
		r.lastStage = event.Stage
		r.lastFile = ""
		fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Stage.String())
	}

	if event.Message != "" {
		fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
		return
	}

	if event.Total > 0 && event.CurrentFile != "" && event.CurrentFile != r.lastFile {
		r.lastFile = event.CurrentFile
		fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, event.CurrentFile)
	}
}

// AddError prints an error or warning line.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.File != "" {
		fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete prints the final summary.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "[%s] Indexed %d notes (%d chunks) in %s\n",
		StageComplete.Icon(), stats.Files, stats.Chunks, formatIngestDuration(stats.Duration))

	if stats.Skipped > 0 {
		fmt.Fprintf(r.out, "[%s] Skipped %d unchanged\n", StageComplete.Icon(), stats.Skipped)
	}
	if stats.Pruned > 0 {
		fmt.Fprintf(r.out, "[%s] Pruned %d deleted notes\n", StageComplete.Icon(), stats.Pruned)
	}
	if stats.Embedder.Backend != "" {
		fmt.Fprintf(r.out, "[%s] Embedder: %s (%s, %d dims)\n",
			StageComplete.Icon(), stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		fmt.Fprintf(r.out, "[%s] %d errors, %d warnings\n", StageComplete.Icon(), stats.Errors, stats.Warnings)
	}
}

// Stop is a no-op for the plain renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// formatIngestDuration renders a duration at human precision.
func formatIngestDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		m := int(d.Minutes())
		s := int(d.Seconds()) - m*60
		return fmt.Sprintf("%dm%ds", m, s)
	}
}
