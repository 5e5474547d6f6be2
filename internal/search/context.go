package search

import (
	"strings"

	"github.com/vaultrank/vaultrank/internal/chunk"
	"github.com/vaultrank/vaultrank/internal/store"
)

// embedText builds the text a chunk is embedded from. Prose chunks are
// prefixed with where they live in the vault, so queries that name the
// note or its section land near them in vector space. Code chunks
// embed raw.
func embedText(r *store.Record) string {
	if r.ContentType == string(chunk.ContentTypeCode) {
		return r.Body
	}
	prefix := embedContext(r)
	if prefix == "" {
		return r.Body
	}
	return prefix + "\n\n" + r.Body
}

// embedContext renders the situating prefix: the vault path, then the
// nearest heading when there is one. The stored body never carries the
// prefix; only the embedding sees it.
func embedContext(r *store.Record) string {
	var parts []string
	if r.Path != "" {
		parts = append(parts, "From note: "+r.Path)
	}
	if title := strings.TrimSpace(r.Title); title != "" {
		parts = append(parts, "Section: "+title)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}
