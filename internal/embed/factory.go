package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Provider selects an embedding backend.
type Provider string

const (
	// ProviderAuto probes Ollama and falls back to the static embedder.
	ProviderAuto Provider = "auto"
	// ProviderOllama requires a reachable Ollama server.
	ProviderOllama Provider = "ollama"
	// ProviderStatic uses deterministic hash embeddings.
	ProviderStatic Provider = "static"
)

// Environment overrides, applied on top of the config so a single
// invocation can switch backends without editing files.
const (
	EnvEmbedder   = "VAULTRANK_EMBEDDER"
	EnvOllamaHost = "VAULTRANK_OLLAMA_HOST"
	EnvEmbedCache = "VAULTRANK_EMBED_CACHE"
)

// FactoryConfig configures NewEmbedder.
type FactoryConfig struct {
	Provider Provider
	Ollama   OllamaConfig

	// StaticDims sets the static embedder dimension. Zero means the
	// default.
	StaticDims int

	// CacheSize bounds the LRU embedding cache. Zero means the default.
	CacheSize    int
	DisableCache bool
}

// DefaultFactoryConfig returns the auto-probing configuration.
func DefaultFactoryConfig() FactoryConfig {
	return FactoryConfig{
		Provider:  ProviderAuto,
		Ollama:    DefaultOllamaConfig(),
		CacheSize: DefaultEmbeddingCacheSize,
	}
}

// NewEmbedder builds an embedder for the configured provider and wraps
// it in the LRU cache unless caching is disabled.
//
// Auto mode tries Ollama first and falls back to the static embedder
// with a logged warning. Explicitly requesting ollama makes an
// unreachable server a hard error instead.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	applyEnvOverrides(&cfg)

	var inner Embedder
	switch cfg.Provider {
	case ProviderOllama:
		e, err := NewOllamaEmbedder(ctx, cfg.Ollama)
		if err != nil {
			return nil, fmt.Errorf("ollama embedder requested but unavailable: %w", err)
		}
		inner = e

	case ProviderStatic:
		inner = NewStaticEmbedderWithDimensions(cfg.StaticDims)

	case ProviderAuto, "":
		e, err := NewOllamaEmbedder(ctx, cfg.Ollama)
		if err != nil {
			slog.Warn("Ollama unavailable, falling back to static embeddings",
				slog.String("host", cfg.Ollama.Host),
				slog.String("error", err.Error()))
			inner = NewStaticEmbedderWithDimensions(cfg.StaticDims)
		} else {
			inner = e
		}

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: auto, ollama, static)", cfg.Provider)
	}

	if cfg.DisableCache {
		return inner, nil
	}
	cached, err := NewCachedEmbedder(inner, cfg.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return cached, nil
}

func applyEnvOverrides(cfg *FactoryConfig) {
	if v := os.Getenv(EnvEmbedder); v != "" {
		cfg.Provider = Provider(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv(EnvOllamaHost); v != "" {
		cfg.Ollama.Host = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v := os.Getenv(EnvEmbedCache); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "off", "false", "0":
			cfg.DisableCache = true
		default:
			if size, err := strconv.Atoi(v); err == nil && size > 0 {
				cfg.CacheSize = size
			}
		}
	}
}
