package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_StartPrintsHeader(t *testing.T) {
	// Given a plain renderer with a vault dir
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf, WithVaultDir("/home/u/notes")))

	// When starting
	require.NoError(t, r.Start(context.Background()))

	// Then the header names the vault
	assert.Contains(t, buf.String(), "Ingesting vault: /home/u/notes")
}

func TestPlainRenderer_StartIdempotent(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf, WithVaultDir("/v")))

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))

	assert.Equal(t, 1, strings.Count(buf.String(), "Ingesting vault"))
}

func TestPlainRenderer_StageTransition(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.UpdateProgress(ProgressEvent{Stage: StageScanning})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing})

	out := buf.String()
	assert.Contains(t, out, "[SCAN] Scanning")
	assert.Contains(t, out, "[INDEX] Indexing")
}

func TestPlainRenderer_ProgressLines(t *testing.T) {
	// Given a renderer past the stage transition
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	// When files progress
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 3, CurrentFile: "a.md"})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 2, Total: 3, CurrentFile: "b.md"})

	// Then each file gets one line
	out := buf.String()
	assert.Contains(t, out, "[INDEX] 1/3 - a.md")
	assert.Contains(t, out, "[INDEX] 2/3 - b.md")
}

func TestPlainRenderer_CollapsesRepeatedFile(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 2, CurrentFile: "a.md"})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 2, CurrentFile: "a.md"})

	assert.Equal(t, 1, strings.Count(buf.String(), "a.md"))
}

func TestPlainRenderer_MessageLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "walking vault"})

	assert.Contains(t, buf.String(), "[SCAN] walking vault")
}

func TestPlainRenderer_AddError(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.AddError(ErrorEvent{File: "bad.md", Err: errors.New("unreadable")})
	r.AddError(ErrorEvent{File: "odd.md", Err: errors.New("binary content"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("no file attached")})

	out := buf.String()
	assert.Contains(t, out, "ERROR: bad.md: unreadable")
	assert.Contains(t, out, "WARN: odd.md: binary content")
	assert.Contains(t, out, "ERROR: no file attached")
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given completion stats with every field populated
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	// When completing
	r.Complete(CompletionStats{
		Files:    120,
		Chunks:   480,
		Skipped:  5,
		Pruned:   2,
		Duration: 3200 * time.Millisecond,
		Errors:   1,
		Warnings: 2,
		Embedder: EmbedderInfo{Backend: "ollama", Model: "nomic-embed-text", Dimensions: 768},
	})

	// Then the summary covers everything
	out := buf.String()
	assert.Contains(t, out, "[DONE] Indexed 120 notes (480 chunks) in 3.2s")
	assert.Contains(t, out, "Skipped 5 unchanged")
	assert.Contains(t, out, "Pruned 2 deleted notes")
	assert.Contains(t, out, "Embedder: ollama (nomic-embed-text, 768 dims)")
	assert.Contains(t, out, "1 errors, 2 warnings")
}

func TestPlainRenderer_CompleteMinimal(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.Complete(CompletionStats{Files: 3, Chunks: 9, Duration: 40 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "[DONE] Indexed 3 notes (9 chunks) in 40ms")
	assert.NotContains(t, out, "Skipped")
	assert.NotContains(t, out, "Pruned")
	assert.NotContains(t, out, "Embedder")
	assert.NotContains(t, out, "warnings")
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	// Given a full render cycle
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf, WithVaultDir("/v")))

	require.NoError(t, r.Start(context.Background()))
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 1, CurrentFile: "a.md"})
	r.AddError(ErrorEvent{File: "b.md", Err: errors.New("boom")})
	r.Complete(CompletionStats{Files: 1, Chunks: 2, Duration: time.Second})
	require.NoError(t, r.Stop())

	// Then no escape sequences appear
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_ThreadSafe(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: n, Total: 10, CurrentFile: fmt.Sprintf("f%d.md", n)})
			r.AddError(ErrorEvent{Err: errors.New("x"), IsWarn: true})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, strings.Count(buf.String(), "WARN:"))
}

func TestFormatIngestDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{61 * time.Second, "1m1s"},
		{150 * time.Second, "2m30s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatIngestDuration(tt.d))
	}
}
