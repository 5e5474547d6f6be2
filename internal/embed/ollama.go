package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	vrerrors "github.com/vaultrank/vaultrank/internal/errors"
)

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu       sync.RWMutex
	closed   bool
	lastCall time.Time
}

var _ Embedder = (*OllamaEmbedder)(nil)

// withDefaults fills unset config fields and clamps BatchSize.
func withDefaults(cfg OllamaConfig) OllamaConfig {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackOllamaModels
	}
	switch {
	case cfg.BatchSize <= 0:
		cfg.BatchSize = DefaultBatchSize
	case cfg.BatchSize > MaxBatchSize:
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = OllamaConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}
	return cfg
}

// NewOllamaEmbedder connects to Ollama, resolves an installed embedding
// model (falling back through FallbackModels), and detects the
// embedding dimension unless the config pins one.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg = withDefaults(cfg)

	// Per-request timeouts come from contexts, not the client, so the
	// warm/cold distinction works.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		if err := e.discover(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// discover resolves the model name and probes the embedding dimension.
// Cold model loads can take a while, so discovery gets the cold timeout
// rather than ConnectTimeout.
func (e *OllamaEmbedder) discover(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, DefaultColdTimeout)
	defer cancel()

	modelName, err := e.findAvailableModel(checkCtx)
	if err != nil {
		return fmt.Errorf("connect to Ollama: %w", err)
	}
	e.modelName = modelName

	if e.dims != 0 {
		return nil
	}

	// Probe with a throwaway string and measure the vector.
	probe, err := e.doEmbed(checkCtx, []string{"dimension detection"})
	if err != nil {
		return fmt.Errorf("detect embedding dimensions: %w", err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return fmt.Errorf("detect embedding dimensions: empty embedding returned")
	}
	e.dims = len(probe[0])
	return nil
}

// apiCall issues one JSON request against the Ollama API and decodes
// the response into out. A nil payload sends a GET.
func (e *OllamaEmbedder) apiCall(ctx context.Context, path string, payload, out any) error {
	method := http.MethodGet
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		method = http.MethodPost
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.config.Host+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// findAvailableModel resolves the configured model against what is
// installed, matching with or without the :tag suffix, then walks the
// fallback list.
func (e *OllamaEmbedder) findAvailableModel(ctx context.Context) (string, error) {
	var listing ollamaModelListResponse
	if err := e.apiCall(ctx, "/api/tags", nil, &listing); err != nil {
		return "", fmt.Errorf("connect to Ollama: %w", err)
	}

	installed := make(map[string]string) // normalized -> installed name
	for _, m := range listing.Models {
		name := strings.ToLower(m.Name)
		installed[name] = m.Name
		if base, _, found := strings.Cut(name, ":"); found {
			if _, taken := installed[base]; !taken {
				installed[base] = m.Name
			}
		}
	}

	resolve := func(candidate string) (string, bool) {
		name := strings.ToLower(candidate)
		if actual, ok := installed[name]; ok {
			return actual, true
		}
		base, _, _ := strings.Cut(name, ":")
		actual, ok := installed[base]
		return actual, ok
	}

	if actual, ok := resolve(e.config.Model); ok {
		return actual, nil
	}
	for _, fallback := range e.config.FallbackModels {
		if actual, ok := resolve(fallback); ok {
			return actual, nil
		}
	}

	return "", fmt.Errorf("no embedding model installed (tried %s and %v)", e.config.Model, e.config.FallbackModels)
}

// checkOpen errors once Close has been called.
func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

// Embed generates the embedding for one text. Empty input yields a zero
// vector without a network call.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Empty texts get
// zero vectors; the rest go to Ollama in BatchSize groups.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	// Zero-fill blanks up front and queue only real texts.
	var pendingIdx []int
	var pending []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		pendingIdx = append(pendingIdx, i)
		pending = append(pending, text)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.config.BatchSize, len(pending))
		embeddings, err := e.embedWithRetry(ctx, pending[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		for i, emb := range embeddings {
			results[pendingIdx[start+i]] = emb
		}

		if e.config.ProgressFunc != nil {
			e.config.ProgressFunc(end, len(pending))
		}
	}

	return results, nil
}

// getTimeout picks the warm or cold timeout based on how recently the
// model served a request. Ollama unloads idle models after a few
// minutes, and a cold load dwarfs the request itself.
func (e *OllamaEmbedder) getTimeout() time.Duration {
	e.mu.RLock()
	lastCall := e.lastCall
	e.mu.RUnlock()

	if lastCall.IsZero() || time.Since(lastCall) > ModelUnloadThreshold {
		return DefaultColdTimeout
	}
	return DefaultWarmTimeout
}

// embedWithRetry wraps doEmbed in exponential backoff, giving each
// attempt its own warm/cold timeout.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := vrerrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	return vrerrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, e.getTimeout())
		defer cancel()

		embeddings, err := e.doEmbed(attemptCtx, texts)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.lastCall = time.Now()
		e.mu.Unlock()

		return embeddings, nil
	})
}

// doEmbed performs one /api/embed request and returns normalized
// float32 vectors.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := ollamaEmbedRequest{Model: e.modelName}
	if len(texts) == 1 {
		reqBody.Input = texts[0]
	} else {
		reqBody.Input = texts
	}

	var apiResult ollamaEmbedResponse
	if err := e.apiCall(ctx, "/api/embed", reqBody, &apiResult); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the resolved model name.
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available reports whether Ollama answers within the connect timeout.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.config.ConnectTimeout)
	defer cancel()

	var listing ollamaModelListResponse
	return e.apiCall(checkCtx, "/api/tags", nil, &listing) == nil
}

// Close releases pooled connections. Idempotent.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
