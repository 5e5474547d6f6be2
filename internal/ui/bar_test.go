package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBarRenderer(buf *bytes.Buffer) *BarRenderer {
	return NewBarRenderer(NewConfig(buf, WithNoColor(true), WithVaultDir("/home/u/notes")))
}

func TestBarRenderer_StartPrintsHeader(t *testing.T) {
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)

	require.NoError(t, r.Start(context.Background()))

	assert.Contains(t, buf.String(), "Ingesting vault")
	assert.Contains(t, buf.String(), "/home/u/notes")
}

func TestBarRenderer_ProgressShowsStageAndCount(t *testing.T) {
	// Given a started renderer
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)

	// When indexing progresses
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 3, CurrentFile: "a.md"})

	// Then the bar names the stage and count
	out := buf.String()
	assert.Contains(t, out, "Indexing")
	assert.Contains(t, out, "1/3")
}

func TestBarRenderer_StageTransitionStartsNewBar(t *testing.T) {
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)

	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 2})
	r.UpdateProgress(ProgressEvent{Stage: StagePruning, Current: 1, Total: 4})

	out := buf.String()
	assert.Contains(t, out, "Indexing")
	assert.Contains(t, out, "Pruning")
	assert.Contains(t, out, "1/4")
}

func TestBarRenderer_MessageOnly(t *testing.T) {
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "walking vault"})

	assert.Contains(t, buf.String(), "walking vault")
}

func TestBarRenderer_AddError(t *testing.T) {
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)

	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 3})
	r.AddError(ErrorEvent{File: "bad.md", Err: errors.New("unreadable")})
	r.AddError(ErrorEvent{File: "odd.md", Err: errors.New("binary"), IsWarn: true})

	out := buf.String()
	assert.Contains(t, out, "error bad.md: unreadable")
	assert.Contains(t, out, "warn odd.md: binary")
}

func TestBarRenderer_Complete(t *testing.T) {
	// Given a renderer mid-progress
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 2, Total: 2})

	// When completing
	r.Complete(CompletionStats{
		Files:    2,
		Chunks:   8,
		Skipped:  1,
		Pruned:   1,
		Duration: 900 * time.Millisecond,
		Errors:   0,
		Warnings: 1,
		Embedder: EmbedderInfo{Backend: "static", Model: "static", Dimensions: 256},
	})

	// Then the summary covers everything
	out := buf.String()
	assert.Contains(t, out, "Indexed 2 notes (8 chunks) in 900ms")
	assert.Contains(t, out, "1 unchanged, skipped")
	assert.Contains(t, out, "1 deleted notes pruned")
	assert.Contains(t, out, "static (static, 256 dims)")
	assert.Contains(t, out, "0 errors, 1 warnings")
}

func TestBarRenderer_StopWithoutBar(t *testing.T) {
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)

	assert.NoError(t, r.Stop())
}

func TestBarRenderer_StopRetiresActiveBar(t *testing.T) {
	var buf bytes.Buffer
	r := newTestBarRenderer(&buf)
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 5})

	require.NoError(t, r.Stop())

	// A second stop is harmless
	assert.NoError(t, r.Stop())
}
