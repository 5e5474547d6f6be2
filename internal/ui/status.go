package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Embedder states shown in status output.
const (
	EmbedderReady       = "ready"
	EmbedderFallback    = "fallback"
	EmbedderUnavailable = "unavailable"
)

// StatusInfo describes the index state shown by the status command.
type StatusInfo struct {
	VaultName      string
	VaultRoot      string
	Flavor         string // obsidian, logseq, or plain
	Notes          int
	Chunks         int
	Vectors        int
	LastIngested   time.Time
	Backend        string // lexical backend
	MetadataSize   int64
	LexicalSize    int64
	VectorSize     int64
	Embedder       EmbedderInfo
	EmbedderStatus string
}

// StatusRenderer renders index status for the terminal.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render writes a human-readable status report.
func (r *StatusRenderer) Render(info StatusInfo) {
	name := info.VaultName
	if name == "" {
		name = "vault"
	}
	header := fmt.Sprintf("Vault: %s (%s)", name, info.Flavor)
	fmt.Fprintln(r.out, r.styles.Header.Render(header))
	r.field("root", info.VaultRoot)
	r.field("ingested", formatRelativeTime(info.LastIngested))
	fmt.Fprintln(r.out)

	fmt.Fprintln(r.out, r.styles.Header.Render("Index"))
	r.field("notes", fmt.Sprintf("%d", info.Notes))
	r.field("chunks", fmt.Sprintf("%d", info.Chunks))
	r.field("vectors", fmt.Sprintf("%d", info.Vectors))
	r.field("backend", info.Backend)

	total := info.MetadataSize + info.LexicalSize + info.VectorSize
	r.field("size", fmt.Sprintf("%s (metadata %s, lexical %s, vectors %s)",
		FormatBytes(total), FormatBytes(info.MetadataSize),
		FormatBytes(info.LexicalSize), FormatBytes(info.VectorSize)))
	fmt.Fprintln(r.out)

	fmt.Fprintln(r.out, r.styles.Header.Render("Embedder"))
	r.field("backend", fmt.Sprintf("%s (%s)", info.Embedder.Backend, r.renderEmbedderStatus(info.EmbedderStatus)))
	if info.Embedder.Model != "" {
		r.field("model", fmt.Sprintf("%s (%d dims)", info.Embedder.Model, info.Embedder.Dimensions))
	}
}

func (r *StatusRenderer) field(label, value string) {
	fmt.Fprintf(r.out, "  %-10s %s\n", r.styles.Label.Render(label), value)
}

// renderEmbedderStatus colors the embedder state.
func (r *StatusRenderer) renderEmbedderStatus(status string) string {
	switch status {
	case EmbedderReady:
		return r.styles.Success.Render(status)
	case EmbedderFallback:
		return r.styles.Warning.Render(status)
	case EmbedderUnavailable:
		return r.styles.Error.Render(status)
	default:
		return r.styles.Dim.Render(status)
	}
}

// statusJSON is the machine-readable status shape.
type statusJSON struct {
	Vault struct {
		Name     string `json:"name"`
		Root     string `json:"root"`
		Flavor   string `json:"flavor"`
		Ingested string `json:"ingested,omitempty"`
	} `json:"vault"`
	Index struct {
		Notes     int    `json:"notes"`
		Chunks    int    `json:"chunks"`
		Vectors   int    `json:"vectors"`
		Backend   string `json:"backend"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"index"`
	Embedder struct {
		Backend    string `json:"backend"`
		Status     string `json:"status"`
		Model      string `json:"model,omitempty"`
		Dimensions int    `json:"dimensions,omitempty"`
	} `json:"embedder"`
}

// RenderJSON writes the status as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	var out statusJSON
	out.Vault.Name = info.VaultName
	out.Vault.Root = info.VaultRoot
	out.Vault.Flavor = info.Flavor
	if !info.LastIngested.IsZero() {
		out.Vault.Ingested = info.LastIngested.UTC().Format(time.RFC3339)
	}
	out.Index.Notes = info.Notes
	out.Index.Chunks = info.Chunks
	out.Index.Vectors = info.Vectors
	out.Index.Backend = info.Backend
	out.Index.SizeBytes = info.MetadataSize + info.LexicalSize + info.VectorSize
	out.Embedder.Backend = info.Embedder.Backend
	out.Embedder.Status = info.EmbedderStatus
	out.Embedder.Model = info.Embedder.Model
	out.Embedder.Dimensions = info.Embedder.Dimensions

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// formatRelativeTime renders a timestamp relative to now.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		return fmt.Sprintf("%d %s ago", m, pluralize("minute", m))
	case d < 24*time.Hour:
		h := int(d.Hours())
		return fmt.Sprintf("%d %s ago", h, pluralize("hour", h))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d %s ago", days, pluralize("day", days))
	}
}

// FormatBytes renders a byte count at human precision.
func FormatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
