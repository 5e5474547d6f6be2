package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

var staticTokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

var staticStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"of": {}, "to": {}, "in": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "with": {}, "that": {}, "this": {}, "it": {},
}

// StaticEmbedder produces deterministic hash-based embeddings with no
// model and no network. Quality is far below a real model, but it
// never fails, which makes it the offline fallback: similar texts
// share tokens and character n-grams, so they land near each other.
type StaticEmbedder struct {
	dims int
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder with the default
// dimension.
func NewStaticEmbedder() *StaticEmbedder {
	return NewStaticEmbedderWithDimensions(StaticDimensions)
}

// NewStaticEmbedderWithDimensions creates a static embedder producing
// vectors of the given dimension. Useful when replacing a model-backed
// embedder without reindexing.
func NewStaticEmbedderWithDimensions(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed hashes tokens and character trigrams into a fixed-size vector
// and normalizes it. Empty input yields a zero vector.
func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dims)

	tokens := staticTokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, token := range tokens {
		vec[hashToIndex(token, s.dims)] += staticTokenWeight
	}

	joined := strings.Join(tokens, " ")
	runes := []rune(joined)
	for i := 0; i+staticNgramSize <= len(runes); i++ {
		gram := string(runes[i : i+staticNgramSize])
		vec[hashToIndex(gram, s.dims)] += staticNgramWeight
	}

	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text independently.
func (s *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (s *StaticEmbedder) Dimensions() int {
	return s.dims
}

// ModelName identifies the static embedder.
func (s *StaticEmbedder) ModelName() string {
	return "static"
}

// Available always reports true. The static embedder has no external
// dependency to be unavailable.
func (s *StaticEmbedder) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (s *StaticEmbedder) Close() error {
	return nil
}

// staticTokenize lowercases, extracts word tokens, splits snake_case,
// and drops stop words and single characters.
func staticTokenize(text string) []string {
	matches := staticTokenPattern.FindAllString(strings.ToLower(text), -1)

	var tokens []string
	for _, m := range matches {
		for _, part := range strings.Split(m, "_") {
			if len(part) < 2 {
				continue
			}
			if _, stop := staticStopWords[part]; stop {
				continue
			}
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// hashToIndex maps a string to a vector index via FNV-64a.
func hashToIndex(s string, dims int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(dims))
}
