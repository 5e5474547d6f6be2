package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vaultrank/vaultrank/internal/async"
	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/search"
	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/internal/telemetry"
	"github.com/vaultrank/vaultrank/pkg/version"
)

// Server is the MCP server for vaultrank. It bridges AI clients with the
// hybrid search engine over stdio.
type Server struct {
	mcp      *mcp.Server
	engine   search.Searcher
	metadata store.MetadataStore
	embedder embed.Embedder
	config   *config.Config
	logger   *slog.Logger

	// vaultRoot anchors note resources and flavor detection.
	vaultRoot string

	// metrics is optional query telemetry, set via SetMetrics.
	metrics *telemetry.QueryMetrics

	// ingest tracks a background first build. Atomic rather than under
	// mu: handlers read it on paths that may already hold mu.
	ingest atomic.Pointer[async.Progress]

	mu sync.RWMutex
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// SearchVaultInput is the input schema for the search_vault tool.
type SearchVaultInput struct {
	Query       string   `json:"query" jsonschema:"the search query to execute"`
	Tag         string   `json:"tag,omitempty" jsonschema:"weight profile tag, e.g. journal or code"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Cap         int      `json:"cap,omitempty" jsonschema:"maximum results per source note; -1 disables the cap"`
	Scope       []string `json:"scope,omitempty" jsonschema:"restrict results to these path prefixes (OR logic)"`
	Types       []string `json:"types,omitempty" jsonschema:"restrict results to content types: code, prose, mixed"`
	LexicalOnly bool     `json:"lexical_only,omitempty" jsonschema:"skip embedding and vector retrieval"`
}

// SearchVaultOutput is the output schema for the search_vault tool.
type SearchVaultOutput struct {
	Results   []ResultOutput `json:"results" jsonschema:"ranked diversity-filtered results"`
	QueryType string         `json:"query_type" jsonschema:"detected query class driving channel weighting"`
	ColdStart bool           `json:"cold_start,omitempty" jsonschema:"true when lexical coverage was sparse and vector weighting was boosted"`
	TookMS    int64          `json:"took_ms" jsonschema:"server-side search time in milliseconds"`
	Notice    string         `json:"notice,omitempty" jsonschema:"set while the first ingest is still running and results may be incomplete"`
}

// ResultOutput is one search result with its full score breakdown.
type ResultOutput struct {
	ChunkID      string               `json:"chunk_id" jsonschema:"chunk identifier"`
	Path         string               `json:"path" jsonschema:"vault-relative note path"`
	Title        string               `json:"title,omitempty" jsonschema:"nearest heading above the chunk"`
	Content      string               `json:"content" jsonschema:"matched chunk text"`
	ContentType  string               `json:"content_type,omitempty" jsonschema:"chunk content class: code, prose, or mixed"`
	Score        float64              `json:"score" jsonschema:"fused relevance score"`
	Channels     search.ChannelScores `json:"channels" jsonschema:"per-channel raw scores before weighting"`
	PriorScore   float64              `json:"prior_score" jsonschema:"signed heuristic prior before clamping"`
	MatchedTerms []string             `json:"matched_terms,omitempty" jsonschema:"query terms that hit this chunk"`
}

// VaultStatsInput is the input schema for the vault_stats tool (no parameters).
type VaultStatsInput struct{}

// VaultStatsOutput is the output schema for the vault_stats tool.
type VaultStatsOutput struct {
	Vault      VaultInfo     `json:"vault"`
	Index      IndexInfo     `json:"index"`
	Embeddings EmbeddingInfo `json:"embeddings"`

	// Ingest is present when a background build has run this session.
	Ingest *async.Snapshot `json:"ingest,omitempty"`
}

// VaultInfo identifies the vault being served.
type VaultInfo struct {
	Name   string `json:"name"`
	Root   string `json:"root_path"`
	Flavor string `json:"flavor"`
}

// IndexInfo reports index sizes.
type IndexInfo struct {
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Vectors   int    `json:"vectors"`
	Backend   string `json:"backend"`
	SizeBytes int64  `json:"size_bytes"`
}

// EmbeddingInfo reports the configured and actual embedder state. Clients
// use the runtime fields to decide how much to trust semantic results.
type EmbeddingInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Status   string `json:"status"`

	ActualModel      string `json:"actual_model"`
	Dimensions       int    `json:"dimensions"`
	IsFallbackActive bool   `json:"is_fallback_active"`
	SemanticQuality  string `json:"semantic_quality"`
}

// NewServer creates an MCP server over an engine. The embedder may be nil;
// vault_stats then reports semantic search as unavailable.
func NewServer(engine search.Searcher, metadata store.MetadataStore, embedder embed.Embedder, cfg *config.Config, vaultRoot string) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:    engine,
		metadata:  metadata,
		embedder:  embedder,
		config:    cfg,
		vaultRoot: vaultRoot,
		logger:    slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "vaultrank",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics attaches query telemetry. When set, a query_metrics resource
// is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// SetIngestProgress attaches a background build tracker. While the build
// runs, search results carry a notice and vault_stats reports progress.
func (s *Server) SetIngestProgress(p *async.Progress) {
	s.ingest.Store(p)
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "vaultrank", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "search_vault",
			Description: searchVaultDescription,
		},
		{
			Name:        "vault_stats",
			Description: vaultStatsDescription,
		},
	}
}

const (
	searchVaultDescription = "Search the knowledge vault. Hybrid keyword and semantic retrieval with per-channel weighting and diversity reranking. Each result carries a score breakdown explaining why the note matched."
	vaultStatsDescription  = "Report vault shape, index sizes, and which embedder is active. Use before searching to verify the vault has been ingested."
)

// CallTool invokes a tool by name with loosely typed arguments, outside the
// MCP transport. search_vault returns markdown; vault_stats returns its
// typed output. The self-check harness and tests drive tools through here.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case "search_vault":
		return s.handleSearchVault(ctx, args)
	case "vault_stats":
		_, out, err := s.vaultStatsHandler(ctx, nil, VaultStatsInput{})
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handleSearchVault adapts map arguments onto the typed handler and renders
// the result as markdown.
func (s *Server) handleSearchVault(ctx context.Context, args map[string]any) (string, error) {
	input := parseSearchArgs(args)
	_, out, err := s.searchVaultHandler(ctx, nil, input)
	if err != nil {
		return "", err
	}
	return FormatSearchResults(input.Query, out), nil
}

// parseSearchArgs extracts search_vault parameters from JSON-decoded
// arguments. Numbers arrive as float64.
func parseSearchArgs(args map[string]any) SearchVaultInput {
	var input SearchVaultInput
	input.Query, _ = args["query"].(string)
	input.Tag, _ = args["tag"].(string)
	input.LexicalOnly, _ = args["lexical_only"].(bool)
	if l, ok := args["limit"].(float64); ok {
		input.Limit = int(l)
	}
	if c, ok := args["cap"].(float64); ok {
		input.Cap = int(c)
	}
	input.Scope = stringSlice(args["scope"])
	input.Types = stringSlice(args["types"])
	return input
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_vault",
		Description: searchVaultDescription,
	}, s.searchVaultHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vault_stats",
		Description: vaultStatsDescription,
	}, s.vaultStatsHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

// searchVaultHandler is the MCP SDK handler for the search_vault tool.
func (s *Server) searchVaultHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchVaultInput) (
	*mcp.CallToolResult,
	SearchVaultOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchVaultOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	limit := clampLimit(input.Limit, s.config.Search.Limit, 1, s.config.Search.MaxLimit)

	s.logger.Info("search_vault started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit))

	opts := search.SearchOptions{
		Limit:        limit,
		Tag:          input.Tag,
		LexicalOnly:  input.LexicalOnly,
		MaxPerSource: input.Cap,
		Scopes:       input.Scope,
		Types:        input.Types,
	}

	resp, err := s.engine.Search(ctx, input.Query, opts)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search_vault failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchVaultOutput{}, MapError(err)
	}

	s.logger.Info("search_vault completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)))

	output := SearchVaultOutput{
		Results:   make([]ResultOutput, 0, len(resp.Results)),
		QueryType: string(resp.QueryType),
		ColdStart: resp.ColdStart,
		TookMS:    resp.Took.Milliseconds(),
	}
	for _, c := range resp.Results {
		output.Results = append(output.Results, ToResultOutput(c))
	}

	if p := s.ingest.Load(); p != nil && p.Building() {
		snap := p.Snapshot()
		output.Notice = fmt.Sprintf(
			"First ingest is still running (%d of %d files indexed); results may be incomplete",
			snap.FilesDone, snap.FilesTotal)
	}

	return nil, output, nil
}

// vaultStatsHandler is the MCP SDK handler for the vault_stats tool.
func (s *Server) vaultStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ VaultStatsInput) (
	*mcp.CallToolResult,
	*VaultStatsOutput,
	error,
) {
	requestID := generateRequestID()
	s.logger.Info("vault_stats started", slog.String("request_id", requestID))

	output := &VaultStatsOutput{
		Vault: VaultInfo{
			Name:   filepath.Base(s.vaultRoot),
			Root:   s.vaultRoot,
			Flavor: string(config.DetectVaultFlavor(s.vaultRoot)),
		},
		Embeddings: s.embeddingInfo(ctx),
	}

	if stats := s.engine.Stats(); stats != nil {
		output.Index.Vectors = stats.Vectors
		if stats.Lexical != nil {
			output.Index.Backend = stats.Lexical.Backend
		}
	}
	if ms, err := s.metadata.Stats(ctx); err == nil && ms != nil {
		output.Index.Documents = ms.Documents
		output.Index.Chunks = ms.Chunks
		output.Index.SizeBytes = ms.SizeBytes
	} else if err != nil {
		s.logger.Warn("metadata stats unavailable",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
	}

	if p := s.ingest.Load(); p != nil {
		snap := p.Snapshot()
		output.Ingest = &snap
	}

	return nil, output, nil
}

// embeddingInfo reports configured versus actual embedder state.
func (s *Server) embeddingInfo(ctx context.Context) EmbeddingInfo {
	info := EmbeddingInfo{
		Provider: s.config.Embeddings.Provider,
		Model:    s.config.Embeddings.Model,
	}

	if s.embedder == nil {
		info.Status = "unavailable"
		info.ActualModel = "none"
		info.IsFallbackActive = true
		info.SemanticQuality = "none"
		return info
	}

	info.ActualModel = s.embedder.ModelName()
	info.Dimensions = s.embedder.Dimensions()
	info.IsFallbackActive = info.ActualModel == "static"
	if info.IsFallbackActive {
		info.SemanticQuality = "low"
	} else {
		info.SemanticQuality = "high"
	}

	if s.embedder.Available(ctx) {
		info.Status = "ready"
	} else {
		info.Status = "unavailable"
	}
	return info
}

// ToResultOutput converts a candidate into the tool output row.
func ToResultOutput(c *search.Candidate) ResultOutput {
	if c == nil {
		return ResultOutput{}
	}
	return ResultOutput{
		ChunkID:      c.ChunkID,
		Path:         c.Path,
		Title:        c.Title,
		Content:      c.Content,
		ContentType:  c.ContentType,
		Score:        c.FinalScore,
		Channels:     c.Channels,
		PriorScore:   c.PriorScore,
		MatchedTerms: c.MatchedTerms,
	}
}

// Serve runs the server on the given transport until ctx is cancelled.
// Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server",
		slog.String("transport", transport),
		slog.String("vault", s.vaultRoot))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
