package embed

import "time"

// DefaultOllamaHost is the default Ollama API endpoint.
const DefaultOllamaHost = "http://localhost:11434"

// DefaultOllamaModel is the default embedding model. A personal
// vault is mostly prose with code snippets mixed in, so a general
// text model beats the code-specialized ones here. It also honors
// the search_query/search_document task prefixes the engine sends.
const DefaultOllamaModel = "nomic-embed-text"

// OllamaConnectTimeout bounds the initial availability check.
const OllamaConnectTimeout = 5 * time.Second

// OllamaPoolSize is the HTTP connection pool size.
const OllamaPoolSize = 4

// FallbackOllamaModels are tried in order when the configured model is
// not installed.
var FallbackOllamaModels = []string{
	"embeddinggemma",
	"mxbai-embed-large",
	"all-minilm",
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string

	// Model is the embedding model to use.
	Model string

	// FallbackModels are tried in order if the primary model is not
	// installed.
	FallbackModels []string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// BatchSize sizes embedding batches, MaxRetries bounds retries of
	// transient failures, and PoolSize sizes the HTTP connection pool.
	BatchSize, MaxRetries, PoolSize int

	// ConnectTimeout bounds the availability check.
	ConnectTimeout time.Duration

	// SkipHealthCheck skips model discovery and dimension detection on
	// construction. Used by tests that point Host at a stub server.
	SkipHealthCheck bool

	// ProgressFunc, when set, is called after each batch with
	// (completed, total) counts.
	ProgressFunc func(completed, total int)
}

// DefaultOllamaConfig returns the default configuration. Dimensions
// stays zero so the embedder auto-detects them from the model.
func DefaultOllamaConfig() OllamaConfig {
	cfg := OllamaConfig{Host: DefaultOllamaHost, Model: DefaultOllamaModel}
	cfg.FallbackModels, cfg.ConnectTimeout = FallbackOllamaModels, OllamaConnectTimeout
	cfg.BatchSize, cfg.MaxRetries, cfg.PoolSize = DefaultBatchSize, DefaultMaxRetries, OllamaPoolSize
	return cfg
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaModelListResponse is the /api/tags response body.
type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// ollamaModelInfo describes one installed model.
type ollamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
