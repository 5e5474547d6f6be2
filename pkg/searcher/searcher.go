package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/ingest"
	"github.com/vaultrank/vaultrank/internal/search"
	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/internal/telemetry"
	"github.com/vaultrank/vaultrank/internal/weights"
)

// ErrNotIndexed reports an Open with RequireIndex on a vault that has
// never been ingested.
var ErrNotIndexed = errors.New("no index found")

// DefaultInitTimeout bounds the embedder probe during Open so a hung
// Ollama never blocks the caller indefinitely.
const DefaultInitTimeout = 15 * time.Second

// Options configures Open.
type Options struct {
	// Config supplies a pre-loaded vault configuration. Nil loads the
	// layered configuration for the vault root.
	Config *config.Config

	// ConfigFile overrides the conventional config lookup with an
	// explicit file. Ignored when Config is set.
	ConfigFile string

	// Offline forces static embeddings, skipping the Ollama probe.
	Offline bool

	// Embedder substitutes a pre-built embedder for the configured one.
	// The vault takes ownership and closes it with the stack; a caller
	// sharing one embedder across vaults must pass a close-shielded
	// wrapper.
	Embedder embed.Embedder

	// RequireIndex makes Open fail with ErrNotIndexed when the vault
	// has no index yet, instead of opening empty stores.
	RequireIndex bool

	// InitTimeout bounds the embedder probe. Zero uses
	// DefaultInitTimeout.
	InitTimeout time.Duration
}

// Vault is an open search stack over one vault root. Close releases
// everything.
type Vault struct {
	root    string
	dataDir string
	cfg     *config.Config

	meta     store.MetadataStore
	lexical  store.LexicalIndex
	vector   *store.HNSWIndex
	embedder embed.Embedder
	weights  *weights.Provider
	metrics  *telemetry.QueryMetrics
	engine   *search.Engine
}

// Indexed reports whether a metadata store lives in the data directory.
func Indexed(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, "metadata.db"))
	return err == nil
}

// Open builds the full search stack for the vault at root. The stores
// open lazily on disk, so an unindexed vault opens fine unless
// RequireIndex is set; searching it just finds nothing.
func Open(ctx context.Context, root string, opts Options) (*Vault, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}

	cfg := opts.Config
	if cfg == nil {
		if opts.ConfigFile != "" {
			cfg, err = config.LoadWithFile(absRoot, opts.ConfigFile)
			if err != nil {
				return nil, err
			}
		} else if cfg, err = config.Load(absRoot); err != nil {
			cfg = config.NewConfig()
		}
	}

	dataDir := cfg.DataPath(absRoot)
	if opts.RequireIndex && !Indexed(dataDir) {
		return nil, fmt.Errorf("%w for %s, run 'vaultrank ingest' first", ErrNotIndexed, absRoot)
	}

	embedder := opts.Embedder
	if embedder == nil {
		embedder, err = NewEmbedder(ctx, cfg, opts.Offline, opts.InitTimeout)
		if err != nil {
			return nil, err
		}
	}

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if dims, dimsErr := store.ReadVectorIndexDimensions(vectorPath); dimsErr == nil && dims > 0 && dims != embedder.Dimensions() {
		// With an injected embedder the mismatch is permanent, so fail
		// fast. A configured embedder may legitimately differ after a
		// model switch; the vector channel then degrades until the
		// next rebuild.
		if opts.Embedder != nil {
			return nil, fmt.Errorf("vault %s was indexed at %d dimensions, embedder produces %d: reingest or search without the daemon",
				absRoot, dims, embedder.Dimensions())
		}
		slog.Warn("vector index dimensions differ from embedder, semantic search degraded until reingest",
			slog.Int("index", dims),
			slog.Int("embedder", embedder.Dimensions()))
	}

	meta, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	// An existing index pins the backend, whatever the config says now.
	backend := cfg.Storage.Backend
	basePath := filepath.Join(dataDir, "lexical")
	if detected := store.DetectBackend(basePath); detected != "" {
		backend = string(detected)
	}
	lexical, err := store.NewLexicalIndex(basePath, store.DefaultLexicalConfig(), backend)
	if err != nil {
		_ = meta.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	vector, err := store.NewHNSWIndex(vectorPath, store.DefaultVectorConfig(embedder.Dimensions()))
	if err != nil {
		_ = lexical.Close()
		_ = meta.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	provider := weights.NewProvider(cfg.WeightsPath(absRoot))
	metrics := openMetrics(meta)

	engine, err := search.NewEngine(lexical, vector, meta, embedder, provider, EngineConfig(cfg),
		search.WithMetrics(metrics))
	if err != nil {
		_ = metrics.Close()
		_ = vector.Close()
		_ = lexical.Close()
		_ = meta.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("build search engine: %w", err)
	}

	return &Vault{
		root:     absRoot,
		dataDir:  dataDir,
		cfg:      cfg,
		meta:     meta,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		weights:  provider,
		metrics:  metrics,
		engine:   engine,
	}, nil
}

// openMetrics builds the query telemetry collector on the metadata
// database, so counts survive restarts. A store failure degrades to
// in-memory counters.
func openMetrics(meta *store.SQLiteStore) *telemetry.QueryMetrics {
	ms, err := telemetry.NewSQLiteMetricsStore(meta.DB())
	if err != nil {
		slog.Warn("query metrics store unavailable, metrics stay in memory",
			slog.String("error", err.Error()))
		return telemetry.NewQueryMetrics(nil)
	}
	return telemetry.NewQueryMetrics(ms)
}

// Root returns the vault root directory.
func (v *Vault) Root() string { return v.root }

// DataDir returns the index data directory.
func (v *Vault) DataDir() string { return v.dataDir }

// Config returns the loaded vault configuration.
func (v *Vault) Config() *config.Config { return v.cfg }

// Engine returns the hybrid search engine.
func (v *Vault) Engine() *search.Engine { return v.engine }

// Meta returns the metadata store.
func (v *Vault) Meta() store.MetadataStore { return v.meta }

// Lexical returns the lexical index.
func (v *Vault) Lexical() store.LexicalIndex { return v.lexical }

// Vector returns the vector index.
func (v *Vault) Vector() *store.HNSWIndex { return v.vector }

// Embedder returns the stack's embedder.
func (v *Vault) Embedder() embed.Embedder { return v.embedder }

// Weights returns the channel weight provider.
func (v *Vault) Weights() *weights.Provider { return v.weights }

// Metrics returns the query telemetry collector. Every search through
// the engine records into it; it flushes to the metadata database on
// Close.
func (v *Vault) Metrics() *telemetry.QueryMetrics { return v.metrics }

// Search runs one hybrid query against the vault.
func (v *Vault) Search(ctx context.Context, query string, opts search.SearchOptions) (*search.Response, error) {
	return v.engine.Search(ctx, query, opts)
}

// NewPipeline builds an ingest pipeline over the vault's stack using
// the vault configuration.
func (v *Vault) NewPipeline() (*ingest.Pipeline, error) {
	return ingest.NewPipeline(v.engine, v.meta, PipelineConfig(v.cfg, v.root, v.dataDir))
}

// Ingest scans the vault and refreshes the index, creating it on first
// run. Unchanged files are skipped by content hash.
func (v *Vault) Ingest(ctx context.Context, opts ingest.RunOptions) (*ingest.Report, error) {
	pipeline, err := v.NewPipeline()
	if err != nil {
		return nil, fmt.Errorf("build ingest pipeline: %w", err)
	}
	return pipeline.Run(ctx, opts)
}

// Close releases the engine and every store underneath it. Safe to call
// on a nil vault.
func (v *Vault) Close() error {
	if v == nil || v.engine == nil {
		return nil
	}
	// Metrics flush through the metadata database, so they must close
	// while the engine still holds it open.
	var errs []error
	if v.metrics != nil {
		if err := v.metrics.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := v.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
