package searcher

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/ingest"
	"github.com/vaultrank/vaultrank/internal/search"
)

// EngineConfig maps the vault configuration onto engine tunables,
// keeping engine defaults for anything unset.
func EngineConfig(cfg *config.Config) search.EngineConfig {
	ec := search.DefaultEngineConfig()
	if cfg.Search.Limit > 0 {
		ec.DefaultLimit = cfg.Search.Limit
	}
	if cfg.Search.MaxLimit > 0 {
		ec.MaxLimit = cfg.Search.MaxLimit
	}
	if cfg.Search.PoolSize > 0 {
		ec.PoolSize = cfg.Search.PoolSize
	}
	if cfg.Search.RRFConstant > 0 {
		ec.RRFConstant = cfg.Search.RRFConstant
	}
	if cfg.Search.MMRAlpha > 0 {
		ec.Alpha = cfg.Search.MMRAlpha
	}
	if cfg.Search.PerSourcePenalty > 0 {
		ec.PerSourcePenalty = cfg.Search.PerSourcePenalty
	}
	ec.MaxPerSource = cfg.Search.MaxPerSource
	if cfg.Search.ColdStartFraction > 0 {
		ec.ColdStartFraction = cfg.Search.ColdStartFraction
	}
	if cfg.Search.ColdStartThreshold > 0 {
		ec.ColdStartThreshold = cfg.Search.ColdStartThreshold
	}
	ec.SearchTimeout = cfg.SearchTimeout()
	return ec
}

// PipelineConfig maps the vault configuration onto the ingest pipeline.
func PipelineConfig(cfg *config.Config, root, dataDir string) ingest.Config {
	return ingest.Config{
		Root:             root,
		DataDir:          dataDir,
		Include:          cfg.Vault.Include,
		Exclude:          cfg.Vault.Exclude,
		Workers:          cfg.Ingest.Workers,
		MaxFiles:         cfg.Ingest.MaxFiles,
		MaxFileSize:      int64(cfg.Ingest.MaxFileSizeKB) * 1024,
		RespectGitignore: !cfg.Vault.IncludeGitignored,
		Chunking:         cfg.Chunking,
	}
}

// NewEmbedder builds an embedder from the vault configuration without
// opening the rest of the stack. Offline forces static embeddings
// regardless of the configured provider; a zero initTimeout uses
// DefaultInitTimeout.
func NewEmbedder(ctx context.Context, cfg *config.Config, offline bool, initTimeout time.Duration) (embed.Embedder, error) {
	fc := embed.DefaultFactoryConfig()
	if offline {
		fc.Provider = embed.ProviderStatic
	} else if cfg.Embeddings.Provider != "" {
		fc.Provider = embed.Provider(cfg.Embeddings.Provider)
	}
	if cfg.Embeddings.Model != "" {
		fc.Ollama.Model = cfg.Embeddings.Model
	}
	if cfg.Embeddings.OllamaHost != "" {
		fc.Ollama.Host = cfg.Embeddings.OllamaHost
	}
	if cfg.Embeddings.Dimensions > 0 {
		fc.Ollama.Dimensions = cfg.Embeddings.Dimensions
		fc.StaticDims = cfg.Embeddings.Dimensions
	}
	if cfg.Embeddings.BatchSize > 0 {
		fc.Ollama.BatchSize = cfg.Embeddings.BatchSize
	}
	if cfg.Embeddings.CacheSize <= 0 {
		fc.DisableCache = true
	} else {
		fc.CacheSize = cfg.Embeddings.CacheSize
	}

	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}

	// The probe can block on the network.
	embedCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	embedder, err := embed.NewEmbedder(embedCtx, fc)
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}
	return embedder, nil
}
