// Package store is the persistence layer: the lexical index (SQLite FTS5
// or Bleve), the HNSW vector index, and chunk metadata in SQLite.
package store

import (
	"context"
	"fmt"
	"time"
)

// State keys persisted in the metadata store.
const (
	// StateKeyIndexDimension stores the embedding dimension the index was
	// built with.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name the index was
	// built with.
	StateKeyIndexModel = "index_embedding_model"
	// StateKeyVaultRoot stores the vault root path the index belongs to.
	StateKeyVaultRoot = "vault_root"
)

// CurrentSchemaVersion is the metadata database schema version.
const CurrentSchemaVersion = 1

// Record is one indexed chunk with the channel texts the lexical index
// scores separately.
type Record struct {
	ChunkID     string    `json:"chunk_id"`
	DocID       string    `json:"doc_id"`
	Path        string    `json:"path"`         // vault-relative source path
	Short       string    `json:"short"`        // one-line description
	Title       string    `json:"title"`        // nearest heading
	Body        string    `json:"body"`         // chunk content
	ContentType string    `json:"content_type"` // code, prose, mixed
	StartByte   int       `json:"start_byte"`
	EndByte     int       `json:"end_byte"`
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Document is one tracked source file in the vault.
type Document struct {
	DocID       string    `json:"doc_id"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// LexicalHit is one lexical search result with a normalized score per
// channel. A channel the query did not match scores 0.
type LexicalHit struct {
	ChunkID      string
	Path         float64
	Short        float64
	Title        float64
	Body         float64
	MatchedTerms []string
}

// VectorHit is one vector search result.
type VectorHit struct {
	ChunkID   string
	Score     float64 // cosine similarity mapped to [0, 1]
	Embedding []float32
}

// IndexStats describes the lexical index.
type IndexStats struct {
	Documents int    `json:"documents"`
	Backend   string `json:"backend"`
}

// StoreStats describes the metadata store.
type StoreStats struct {
	Documents int   `json:"documents"`
	Chunks    int   `json:"chunks"`
	SizeBytes int64 `json:"size_bytes"`
}

// LexicalIndex scores chunks against a keyword query, per channel.
type LexicalIndex interface {
	// Index adds or replaces records. Existing chunk ids are updated.
	Index(ctx context.Context, recs []*Record) error

	// Search returns up to limit hits with per-channel scores in [0, 1],
	// best first.
	Search(ctx context.Context, query string, limit int) ([]*LexicalHit, error)

	// Delete removes chunks by id.
	Delete(ctx context.Context, chunkIDs []string) error

	// AllIDs returns every indexed chunk id, for consistency checks.
	AllIDs(ctx context.Context) ([]string, error)

	// Stats returns index statistics.
	Stats() *IndexStats

	Close() error
}

// VectorIndex stores embeddings and finds nearest neighbors.
type VectorIndex interface {
	// Add inserts vectors with their chunk ids, replacing existing ids.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error)

	// Lookup returns the stored (normalized) vector for a chunk id.
	Lookup(id string) ([]float32, bool)

	// Delete removes vectors by chunk id.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count() int

	// AllIDs returns every stored chunk id, for consistency checks.
	AllIDs() []string

	Close() error
}

// MetadataStore persists chunk records, document tracking, and runtime
// state in SQLite.
type MetadataStore interface {
	// Chunk records
	SaveRecords(ctx context.Context, recs []*Record) error
	GetRecords(ctx context.Context, chunkIDs []string) ([]*Record, error)
	DeleteRecords(ctx context.Context, chunkIDs []string) error

	// Document tracking
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocumentByPath(ctx context.Context, path string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	// ListChunkIDs returns every chunk id, for consistency checks.
	ListChunkIDs(ctx context.Context) ([]string, error)
	// DeleteByDoc removes a document and its chunks, returning the chunk
	// ids that were removed so callers can clean the indices.
	DeleteByDoc(ctx context.Context, docID string) ([]string, error)

	// Runtime state (key-value)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}

// LexicalConfig configures the lexical index.
type LexicalConfig struct {
	// StopWords are filtered during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index.
	MinTokenLength int
}

// DefaultLexicalConfig returns the default lexical index configuration.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords are high-frequency words that carry no signal in note
// search.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "but",
	"of", "to", "in", "is", "are", "was", "were",
	"with", "that", "this", "it", "as", "at", "on", "by",
}

// VectorConfig configures the HNSW vector index.
type VectorConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// Metric is the distance metric: "cos" or "l2".
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorConfig returns sensible HNSW defaults for the given
// dimension.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   32,
	}
}

// ErrDimensionMismatch indicates a vector with the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'vaultrank ingest --rebuild')", e.Expected, e.Got)
}
