package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend selects the lexical index implementation.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 (default). WAL mode allows
	// concurrent multi-process readers.
	BackendSQLite Backend = "sqlite"

	// BackendBleve uses Bleve v2. BoltDB takes an exclusive lock, so
	// this backend is single-process only.
	BackendBleve Backend = "bleve"
)

// NewLexicalIndex creates a LexicalIndex using the named backend. The
// basePath is extension-less; the backend appends .db or .bleve. An
// empty basePath creates an in-memory index for testing, and an empty
// backend selects SQLite.
func NewLexicalIndex(basePath string, config LexicalConfig, backend string) (LexicalIndex, error) {
	switch backend {
	case string(BackendSQLite), "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewFTSIndex(path, config)

	case string(BackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectBackend reports which backend an existing index at basePath
// uses, or "" when no index exists. Lets open paths stay compatible
// with indexes built under a different configured backend.
func DetectBackend(basePath string) Backend {
	if fileExists(basePath + ".db") {
		return BackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return BackendBleve
	}
	return ""
}

// LexicalIndexPath returns the on-disk path of the lexical index for a
// data directory and backend.
func LexicalIndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "lexical")
	switch backend {
	case string(BackendBleve):
		return basePath + ".bleve"
	default:
		return basePath + ".db"
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
