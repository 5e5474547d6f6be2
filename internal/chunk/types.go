// Package chunk splits vault documents into retrievable units.
//
// Chunking is content-aware: a lightweight classifier buckets each document
// as code, prose, or mixed, and the bucket selects the chunk size, overlap,
// and near-duplicate threshold used by the splitter. Every chunk carries a
// deterministic content-addressed identity so re-ingesting an unchanged
// document produces byte-identical chunk IDs.
package chunk

// ContentType buckets raw document content for chunking purposes.
type ContentType string

const (
	ContentTypeCode    ContentType = "code"
	ContentTypeProse   ContentType = "prose"
	ContentTypeMixed   ContentType = "mixed"
	ContentTypeUnknown ContentType = "unknown"
)

// Config holds the base chunking parameters. Per-content-type overrides are
// layered on top via Override.ApplyTo.
type Config struct {
	// ChunkSize is the target chunk length in bytes.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// OverlapRatio is the fraction of ChunkSize carried over into the next
	// chunk. Must be in [0, 1).
	OverlapRatio float64 `yaml:"overlap_ratio" json:"overlap_ratio"`

	// DedupThreshold is the token-overlap similarity at or above which a
	// chunk is dropped as a near-duplicate of the previously emitted one.
	DedupThreshold float64 `yaml:"dedup_threshold" json:"dedup_threshold"`

	// MinChunkSize is the smallest chunk worth emitting on its own. A
	// trailing fragment below this size is folded into the previous chunk.
	MinChunkSize int `yaml:"min_chunk_size" json:"min_chunk_size"`
}

// DefaultConfig returns the base chunking configuration before any
// content-type override is applied.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      450,
		OverlapRatio:   0.15,
		DedupThreshold: 0.80,
		MinChunkSize:   50,
	}
}

// sanitized clamps out-of-range parameters so the splitter always makes
// forward progress.
func (c Config) sanitized() Config {
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultConfig().ChunkSize
	}
	if c.OverlapRatio < 0 {
		c.OverlapRatio = 0
	}
	if c.OverlapRatio >= 1 {
		c.OverlapRatio = 0.99
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		c.DedupThreshold = DefaultConfig().DedupThreshold
	}
	if c.MinChunkSize < 0 {
		c.MinChunkSize = 0
	}
	return c
}

// Override is the chunking parameter set selected by a content type. All
// three fields are always set; applying an override replaces the matching
// base fields wholesale.
type Override struct {
	ChunkSize      int
	OverlapRatio   float64
	DedupThreshold float64
}

// ApplyTo layers the override onto base. Fields not covered by the override
// (MinChunkSize) keep their base values.
func (o Override) ApplyTo(base Config) Config {
	base.ChunkSize = o.ChunkSize
	base.OverlapRatio = o.OverlapRatio
	base.DedupThreshold = o.DedupThreshold
	return base
}

// Span is a half-open byte range [Start, End) within a document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Chunk is one retrievable unit of a vault document.
type Chunk struct {
	Identity

	// Content is the chunk text as cut from the document.
	Content string `json:"content"`

	// Title is the nearest markdown heading preceding the chunk start, or
	// empty when the document has no headings before that point.
	Title string `json:"title,omitempty"`

	// Type is the content bucket the whole document was classified as.
	Type ContentType `json:"type"`
}
