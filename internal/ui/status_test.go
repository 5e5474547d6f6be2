package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		VaultName:      "notes",
		VaultRoot:      "/home/u/notes",
		Flavor:         "obsidian",
		Notes:          120,
		Chunks:         480,
		Vectors:        480,
		LastIngested:   time.Now().Add(-2 * time.Hour),
		Backend:        "fts",
		MetadataSize:   1 << 20,
		LexicalSize:    900 << 10,
		VectorSize:     300 << 10,
		Embedder:       EmbedderInfo{Backend: "ollama", Model: "nomic-embed-text", Dimensions: 768},
		EmbedderStatus: EmbedderReady,
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given a fully populated status
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	// When rendering
	r.Render(sampleStatus())

	// Then every section appears
	out := buf.String()
	assert.Contains(t, out, "Vault: notes (obsidian)")
	assert.Contains(t, out, "/home/u/notes")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "Index")
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "480")
	assert.Contains(t, out, "fts")
	assert.Contains(t, out, "Embedder")
	assert.Contains(t, out, "ollama (ready)")
	assert.Contains(t, out, "nomic-embed-text (768 dims)")
}

func TestStatusRenderer_EmptyVaultName(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	info := sampleStatus()
	info.VaultName = ""
	r.Render(info)

	assert.Contains(t, buf.String(), "Vault: vault (obsidian)")
}

func TestStatusRenderer_NeverIngested(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	info := sampleStatus()
	info.LastIngested = time.Time{}
	r.Render(info)

	assert.Contains(t, buf.String(), "never")
}

func TestStatusRenderer_EmbedderStates(t *testing.T) {
	for _, status := range []string{EmbedderReady, EmbedderFallback, EmbedderUnavailable} {
		var buf bytes.Buffer
		r := NewStatusRenderer(&buf, true)

		info := sampleStatus()
		info.EmbedderStatus = status
		r.Render(info)

		assert.Contains(t, buf.String(), status)
	}
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given a renderer targeting a buffer
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	// When rendering JSON
	require.NoError(t, r.RenderJSON(sampleStatus()))

	// Then the document round-trips
	var got statusJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "notes", got.Vault.Name)
	assert.Equal(t, "obsidian", got.Vault.Flavor)
	assert.NotEmpty(t, got.Vault.Ingested)
	assert.Equal(t, 120, got.Index.Notes)
	assert.Equal(t, 480, got.Index.Chunks)
	assert.Equal(t, "fts", got.Index.Backend)
	assert.Equal(t, int64((1<<20)+(900<<10)+(300<<10)), got.Index.SizeBytes)
	assert.Equal(t, "ollama", got.Embedder.Backend)
	assert.Equal(t, "ready", got.Embedder.Status)
	assert.Equal(t, 768, got.Embedder.Dimensions)
}

func TestStatusRenderer_RenderJSONNeverIngested(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	info := sampleStatus()
	info.LastIngested = time.Time{}
	require.NoError(t, r.RenderJSON(info))

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.NotContains(t, string(got["vault"]), "ingested")
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero time", time.Time{}, "never"},
		{"seconds ago", now.Add(-30 * time.Second), "just now"},
		{"one minute", now.Add(-90 * time.Second), "1 minute ago"},
		{"minutes", now.Add(-10 * time.Minute), "10 minutes ago"},
		{"one hour", now.Add(-90 * time.Minute), "1 hour ago"},
		{"hours", now.Add(-5 * time.Hour), "5 hours ago"},
		{"one day", now.Add(-30 * time.Hour), "1 day ago"},
		{"days", now.Add(-74 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatRelativeTime(tt.t))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1 << 20, "1.0 MB"},
		{(1 << 20) + (1 << 19), "1.5 MB"},
		{1 << 30, "1.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.n))
	}
}
