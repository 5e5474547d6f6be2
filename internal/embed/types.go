// Package embed generates vector embeddings for vault chunks and
// queries. The default provider is a local Ollama instance; a
// deterministic hash-based embedder keeps search working offline.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch size to prevent memory exhaustion.
	MaxBatchSize = 256

	// DefaultWarmTimeout applies once the model has served a recent
	// request; DefaultColdTimeout when it may need loading first.
	DefaultWarmTimeout = 60 * time.Second
	DefaultColdTimeout = 180 * time.Second

	// ModelUnloadThreshold is how long Ollama keeps an idle model
	// loaded before the next call pays the cold-start price again.
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultDimensions is the dimension assumed when auto-detection is
	// skipped (nomic-embed-text produces 768). StaticDimensions is the
	// dimension of the hash-based embedder.
	DefaultDimensions = 768
	StaticDimensions  = 256
)

// Embedder generates vector embeddings for text. EmbedBatch preserves
// input order; Available reports whether the provider can currently
// serve requests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors pass
// through unchanged.
func normalizeVector(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}

	inv := 1 / math.Sqrt(sq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
