package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaultrank/vaultrank/internal/chunk"
)

// VaultFlavor identifies the note-taking app a vault belongs to.
type VaultFlavor string

const (
	FlavorObsidian VaultFlavor = "obsidian"
	FlavorLogseq   VaultFlavor = "logseq"
	FlavorPlain    VaultFlavor = "plain"
)

// Config is the complete vaultrank configuration. Values merge in order of
// increasing precedence: hardcoded defaults, user config, project config,
// VAULTRANK_* environment variables.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Vault      VaultConfig      `yaml:"vault" json:"vault"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Weights    WeightsConfig    `yaml:"weights" json:"weights"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   chunk.Config     `yaml:"chunking" json:"chunking"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// VaultConfig selects which files belong to the vault.
type VaultConfig struct {
	// Root is the vault directory. Empty means the directory vaultrank
	// runs in (after walking up to the vault root).
	Root string `yaml:"root" json:"root"`

	// Include are doublestar globs of files to ingest.
	Include []string `yaml:"include" json:"include"`

	// Exclude are doublestar globs that override includes.
	Exclude []string `yaml:"exclude" json:"exclude"`

	// IncludeGitignored also ingests files the vault's .gitignore
	// excludes. Off by default: gitignored files are usually caches,
	// exports, or plugin artifacts.
	IncludeGitignored bool `yaml:"include_gitignored" json:"include_gitignored"`
}

// SearchConfig tunes retrieval, fusion, and reranking.
type SearchConfig struct {
	// Limit is the result count when the caller does not ask for one.
	Limit int `yaml:"limit" json:"limit"`

	// MaxLimit bounds any requested result count.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// PoolSize is how many candidates each retrieval channel contributes
	// before fusion.
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// RRFConstant is the smoothing constant for the rank merge. k=60 is
	// the value most engines ship with.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// MMRAlpha balances relevance against redundancy in the reranker.
	// 1.0 is pure relevance, 0.0 pure diversity.
	MMRAlpha float64 `yaml:"mmr_alpha" json:"mmr_alpha"`

	// PerSourcePenalty discounts repeated picks from the same source file
	// during reranking.
	PerSourcePenalty float64 `yaml:"per_source_penalty" json:"per_source_penalty"`

	// MaxPerSource caps final results per source file. 0 disables the cap.
	MaxPerSource int `yaml:"max_per_source" json:"max_per_source"`

	// ColdStartFraction is the vector weight increase applied while the
	// lexical index is still sparse for a query.
	ColdStartFraction float64 `yaml:"cold_start_fraction" json:"cold_start_fraction"`

	// ColdStartThreshold is the lexical hit count below which a query
	// counts as lexically sparse.
	ColdStartThreshold int `yaml:"cold_start_threshold" json:"cold_start_threshold"`

	// Timeout bounds one search request, as a Go duration string.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// WeightsConfig points at the per-tag channel weight source.
type WeightsConfig struct {
	// Source is the weights YAML path, relative to the vault root unless
	// absolute. Empty uses the built-in default profile.
	Source string `yaml:"source" json:"source"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: auto, ollama, or static.
	Provider string `yaml:"provider" json:"provider"`

	// Model is the Ollama embedding model to prefer.
	Model string `yaml:"model" json:"model"`

	// Dimensions forces a vector width. 0 auto-detects from the model.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is how many texts go into one embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint. Empty uses the default
	// http://localhost:11434.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the embedding LRU capacity. 0 or negative disables
	// the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// StorageConfig selects index backends and their location.
type StorageConfig struct {
	// Backend is the lexical index implementation: sqlite or bleve.
	Backend string `yaml:"backend" json:"backend"`

	// DataDir is where indexes live, relative to the vault root unless
	// absolute.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// SQLiteCacheMB is the SQLite page cache size in MB.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// Workers is the embedding pipeline parallelism.
	Workers int `yaml:"workers" json:"workers"`

	// MaxFiles aborts a scan that matches more files than this. A guard
	// against pointing vaultrank at a home directory by accident.
	MaxFiles int `yaml:"max_files" json:"max_files"`

	// MaxFileSizeKB skips files larger than this.
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	// Transport is the MCP transport. Only stdio is supported.
	Transport string `yaml:"transport" json:"transport"`

	// LogLevel is the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded from ingestion.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/.obsidian/**",
	"**/.trash/**",
	"**/.vaultrank/**",
	"**/node_modules/**",
	"**/*.tmp",
	"**/*.bak",
}

// defaultIncludePatterns cover the formats people keep notes in.
var defaultIncludePatterns = []string{
	"**/*.md",
	"**/*.markdown",
	"**/*.txt",
}

// NewConfig returns a Config with every default filled in.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Vault: VaultConfig{
			Include: defaultIncludePatterns,
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			Limit:              10,
			MaxLimit:           100,
			PoolSize:           60,
			RRFConstant:        60,
			MMRAlpha:           0.85,
			PerSourcePenalty:   0.10,
			MaxPerSource:       0,
			ColdStartFraction:  0.10,
			ColdStartThreshold: 3,
			Timeout:            "5s",
		},
		Weights: WeightsConfig{
			Source: "",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "auto",
			Model:      "nomic-embed-text",
			Dimensions: 0,
			BatchSize:  32,
			OllamaHost: "",
			CacheSize:  1000,
		},
		Chunking: chunk.DefaultConfig(),
		Storage: StorageConfig{
			Backend:       "sqlite",
			DataDir:       ".vaultrank",
			SQLiteCacheMB: 64,
		},
		Ingest: IngestConfig{
			Workers:       runtime.NumCPU(),
			MaxFiles:      50000,
			MaxFileSizeKB: 1024,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the user configuration file path following the
// XDG base directory layout:
//   - $XDG_CONFIG_HOME/vaultrank/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/vaultrank/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vaultrank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vaultrank", "config.yaml")
	}
	return filepath.Join(home, ".config", "vaultrank", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration if present. A missing file is
// not an error.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("load user config %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadUserConfig loads the user configuration file. Returns nil config and
// nil error when no user config exists.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load assembles the configuration for a vault directory.
// Precedence, lowest to highest:
//  1. Hardcoded defaults
//  2. User config (~/.config/vaultrank/config.yaml)
//  3. Project config (.vaultrank.yaml in the vault root)
//  4. VAULTRANK_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadWithFile assembles configuration like Load but reads the project
// config from an explicit path instead of the vault root. Unlike the
// conventional lookup, the named file must exist and parse.
func LoadWithFile(dir, configPath string) (*Config, error) {
	if configPath == "" {
		return Load(dir)
	}

	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadYAML(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromDir loads .vaultrank.yaml (or .yml) from the vault root if present.
func (c *Config) loadFromDir(dir string) error {
	yamlPath := filepath.Join(dir, ".vaultrank.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".vaultrank.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No project config is fine.
	return nil
}

// loadYAML parses one YAML file and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Excludes append to
// the defaults instead of replacing them so the built-in ignore list keeps
// working under any user config.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Vault
	if other.Vault.Root != "" {
		c.Vault.Root = other.Vault.Root
	}
	if len(other.Vault.Include) > 0 {
		c.Vault.Include = other.Vault.Include
	}
	if len(other.Vault.Exclude) > 0 {
		c.Vault.Exclude = append(c.Vault.Exclude, other.Vault.Exclude...)
	}
	if other.Vault.IncludeGitignored {
		c.Vault.IncludeGitignored = true
	}

	// Search
	if other.Search.Limit != 0 {
		c.Search.Limit = other.Search.Limit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.PoolSize != 0 {
		c.Search.PoolSize = other.Search.PoolSize
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.MMRAlpha != 0 {
		c.Search.MMRAlpha = other.Search.MMRAlpha
	}
	if other.Search.PerSourcePenalty != 0 {
		c.Search.PerSourcePenalty = other.Search.PerSourcePenalty
	}
	if other.Search.MaxPerSource != 0 {
		c.Search.MaxPerSource = other.Search.MaxPerSource
	}
	if other.Search.ColdStartFraction != 0 {
		c.Search.ColdStartFraction = other.Search.ColdStartFraction
	}
	if other.Search.ColdStartThreshold != 0 {
		c.Search.ColdStartThreshold = other.Search.ColdStartThreshold
	}
	if other.Search.Timeout != "" {
		c.Search.Timeout = other.Search.Timeout
	}

	// Weights
	if other.Weights.Source != "" {
		c.Weights.Source = other.Weights.Source
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// Chunking
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.OverlapRatio != 0 {
		c.Chunking.OverlapRatio = other.Chunking.OverlapRatio
	}
	if other.Chunking.DedupThreshold != 0 {
		c.Chunking.DedupThreshold = other.Chunking.DedupThreshold
	}
	if other.Chunking.MinChunkSize != 0 {
		c.Chunking.MinChunkSize = other.Chunking.MinChunkSize
	}

	// Storage
	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.SQLiteCacheMB != 0 {
		c.Storage.SQLiteCacheMB = other.Storage.SQLiteCacheMB
	}

	// Ingest
	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.MaxFiles != 0 {
		c.Ingest.MaxFiles = other.Ingest.MaxFiles
	}
	if other.Ingest.MaxFileSizeKB != 0 {
		c.Ingest.MaxFileSizeKB = other.Ingest.MaxFileSizeKB
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies VAULTRANK_* environment variable overrides.
// Env values beat every config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULTRANK_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.Limit = n
		}
	}
	if v := os.Getenv("VAULTRANK_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("VAULTRANK_MMR_ALPHA"); v != "" {
		if a, err := parseFloat64(v); err == nil && a >= 0 && a <= 1 {
			c.Search.MMRAlpha = a
		}
	}
	// Zero is meaningful here (disable the cap), so any parseable
	// non-negative value wins.
	if v := os.Getenv("VAULTRANK_MAX_PER_SOURCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Search.MaxPerSource = n
		}
	}
	if v := os.Getenv("VAULTRANK_WEIGHTS"); v != "" {
		c.Weights.Source = v
	}
	// Same names the embed factory honors, so both layers agree.
	if v := os.Getenv("VAULTRANK_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("VAULTRANK_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("VAULTRANK_LEXICAL_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("VAULTRANK_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("VAULTRANK_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// parseFloat64 parses a string to float64 for env overrides.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks the assembled configuration and returns the first
// violation found.
func (c *Config) Validate() error {
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be non-negative, got %d", c.Search.Limit)
	}
	if c.Search.MaxLimit < 1 {
		return fmt.Errorf("search.max_limit must be positive, got %d", c.Search.MaxLimit)
	}
	if c.Search.PoolSize < 1 {
		return fmt.Errorf("search.pool_size must be positive, got %d", c.Search.PoolSize)
	}
	if c.Search.RRFConstant < 1 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.MMRAlpha < 0 || c.Search.MMRAlpha > 1 {
		return fmt.Errorf("search.mmr_alpha must be between 0 and 1, got %f", c.Search.MMRAlpha)
	}
	if c.Search.PerSourcePenalty < 0 {
		return fmt.Errorf("search.per_source_penalty must be non-negative, got %f", c.Search.PerSourcePenalty)
	}
	if c.Search.MaxPerSource < 0 {
		return fmt.Errorf("search.max_per_source must be non-negative, got %d", c.Search.MaxPerSource)
	}
	if c.Search.ColdStartFraction < 0 || c.Search.ColdStartFraction > 1 {
		return fmt.Errorf("search.cold_start_fraction must be between 0 and 1, got %f", c.Search.ColdStartFraction)
	}
	if c.Search.Timeout != "" {
		if _, err := time.ParseDuration(c.Search.Timeout); err != nil {
			return fmt.Errorf("search.timeout is not a valid duration: %q", c.Search.Timeout)
		}
	}

	if c.Chunking.ChunkSize < 1 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.OverlapRatio < 0 || c.Chunking.OverlapRatio >= 1 {
		return fmt.Errorf("chunking.overlap_ratio must be in [0, 1), got %f", c.Chunking.OverlapRatio)
	}
	if c.Chunking.DedupThreshold < 0 || c.Chunking.DedupThreshold > 1 {
		return fmt.Errorf("chunking.dedup_threshold must be between 0 and 1, got %f", c.Chunking.DedupThreshold)
	}

	if p := strings.ToLower(c.Embeddings.Provider); p != "" {
		validProviders := map[string]bool{"auto": true, "ollama": true, "static": true}
		if !validProviders[p] {
			return fmt.Errorf("embeddings.provider must be 'auto', 'ollama', or 'static', got %s", c.Embeddings.Provider)
		}
	}

	if b := strings.ToLower(c.Storage.Backend); b != "" {
		validBackends := map[string]bool{"sqlite": true, "bleve": true}
		if !validBackends[b] {
			return fmt.Errorf("storage.backend must be 'sqlite' or 'bleve', got %s", c.Storage.Backend)
		}
	}

	if c.Ingest.Workers < 0 {
		return fmt.Errorf("ingest.workers must be non-negative, got %d", c.Ingest.Workers)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// SearchTimeout returns the parsed search timeout, falling back to 5s when
// unset or unparseable.
func (c *Config) SearchTimeout() time.Duration {
	if c.Search.Timeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// DataPath resolves the storage directory against the vault root.
func (c *Config) DataPath(root string) string {
	if filepath.IsAbs(c.Storage.DataDir) {
		return c.Storage.DataDir
	}
	return filepath.Join(root, c.Storage.DataDir)
}

// WeightsPath resolves the weights source against the vault root. Empty
// when no source is configured.
func (c *Config) WeightsPath(root string) string {
	if c.Weights.Source == "" {
		return ""
	}
	if filepath.IsAbs(c.Weights.Source) {
		return c.Weights.Source
	}
	return filepath.Join(root, c.Weights.Source)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// FindVaultRoot walks up from startDir looking for a vault marker: a
// .vaultrank.yaml/.yml config, an .obsidian directory, or a .git directory.
// Without a marker the original directory is the root.
func FindVaultRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ".vaultrank.yaml")) ||
			fileExists(filepath.Join(currentDir, ".vaultrank.yml")) {
			return currentDir, nil
		}
		if dirExists(filepath.Join(currentDir, ".obsidian")) {
			return currentDir, nil
		}
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DetectVaultFlavor reports which note-taking app owns the vault, based on
// its marker directories. Used by init to suggest excludes.
func DetectVaultFlavor(dir string) VaultFlavor {
	if dirExists(filepath.Join(dir, ".obsidian")) {
		return FlavorObsidian
	}
	if dirExists(filepath.Join(dir, "logseq")) && dirExists(filepath.Join(dir, "pages")) {
		return FlavorLogseq
	}
	return FlavorPlain
}

// String returns the flavor name.
func (f VaultFlavor) String() string {
	return string(f)
}

// fileExists checks that a path exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks that a path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
