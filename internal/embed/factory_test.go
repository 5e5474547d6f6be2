package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_StaticProvider(t *testing.T) {
	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderStatic
	cfg.StaticDims = 32

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static", e.ModelName())
	assert.Equal(t, 32, e.Dimensions())

	// Wrapped in the cache by default
	_, ok := e.(*CachedEmbedder)
	assert.True(t, ok)
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	cfg := DefaultFactoryConfig()
	cfg.Provider = Provider("openai")

	_, err := NewEmbedder(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedding provider")
}

func TestNewEmbedder_ExplicitOllamaUnreachableFails(t *testing.T) {
	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderOllama
	cfg.Ollama.Host = "http://localhost:1"
	cfg.Ollama.MaxRetries = 1
	cfg.Ollama.ConnectTimeout = time.Second

	_, err := NewEmbedder(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama embedder requested but unavailable")
}

func TestNewEmbedder_AutoFallsBackToStatic(t *testing.T) {
	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderAuto
	cfg.Ollama.Host = "http://localhost:1"
	cfg.Ollama.MaxRetries = 1
	cfg.Ollama.ConnectTimeout = time.Second

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static", e.ModelName())
}

func TestNewEmbedder_AutoUsesOllamaWhenReachable(t *testing.T) {
	stub := newOllamaStub([]string{"nomic-embed-text:latest"}, 8)
	srv := stub.serve(t)

	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderAuto
	cfg.Ollama.Host = srv.URL
	cfg.Ollama.MaxRetries = 1

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())
}

func TestNewEmbedder_DisableCache(t *testing.T) {
	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderStatic
	cfg.DisableCache = true

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok)
}

func TestNewEmbedder_EnvProviderOverride(t *testing.T) {
	t.Setenv(EnvEmbedder, "static")

	// Config says ollama against a dead host; env wins
	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderOllama
	cfg.Ollama.Host = "http://localhost:1"

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static", e.ModelName())
}

func TestNewEmbedder_EnvHostOverride(t *testing.T) {
	stub := newOllamaStub([]string{"nomic-embed-text:latest"}, 4)
	srv := stub.serve(t)
	t.Setenv(EnvOllamaHost, srv.URL+"/")

	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderOllama
	cfg.Ollama.Host = "http://localhost:1"
	cfg.Ollama.MaxRetries = 1

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
}

func TestNewEmbedder_EnvCacheOff(t *testing.T) {
	t.Setenv(EnvEmbedCache, "off")

	cfg := DefaultFactoryConfig()
	cfg.Provider = ProviderStatic

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok)
}

func TestApplyEnvOverrides_CacheSize(t *testing.T) {
	t.Setenv(EnvEmbedCache, "250")

	cfg := DefaultFactoryConfig()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 250, cfg.CacheSize)
	assert.False(t, cfg.DisableCache)
}
