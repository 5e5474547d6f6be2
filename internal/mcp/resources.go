package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize caps how large a note the server will hand out (1MB).
const MaxResourceSize = 1024 * 1024

// queryMetricsURI identifies the telemetry resource.
const queryMetricsURI = "vaultrank://query_metrics"

// RegisterNoteResources registers every tracked document as a readable
// vault:// resource. Call after the index is opened and before serving.
func (s *Server) RegisterNoteResources(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vaultRoot == "" {
		return fmt.Errorf("vault root must be set before registering resources")
	}

	docs, err := s.metadata.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	for _, doc := range docs {
		s.registerNoteResource(doc.Path, doc.Size)
	}

	s.logger.Info("registered note resources", slog.Int("count", len(docs)))
	return nil
}

// registerNoteResource registers a single note as an MCP resource.
func (s *Server) registerNoteResource(relPath string, size int64) {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(relPath),
			URI:         "vault://" + relPath,
			Description: fmt.Sprintf("%s (%s)", relPath, humanSize(size)),
			MIMEType:    MimeTypeForPath(relPath),
		},
		s.makeNoteHandler(relPath),
	)
}

// makeNoteHandler creates a read handler bound to one note path.
func (s *Server) makeNoteHandler(relPath string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readNote(ctx, relPath)
	}
}

// readNote serves note content with path validation and a size cap. Only
// tracked notes are readable; the handler never follows paths outside the
// vault.
func (s *Server) readNote(ctx context.Context, relPath string) (*mcp.ReadResourceResult, error) {
	if !isValidNotePath(relPath) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", relPath))
	}

	doc, err := s.metadata.GetDocumentByPath(ctx, relPath)
	if err != nil {
		return nil, MapError(err)
	}
	if doc == nil {
		return nil, NewResourceNotFoundError("vault://" + relPath)
	}

	fullPath := filepath.Join(s.vaultRoot, filepath.FromSlash(relPath))
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeNoteNotFound,
				Message: fmt.Sprintf("note not found: %s", relPath),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeNoteTooLarge,
			Message: fmt.Sprintf("note too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      "vault://" + relPath,
				MIMEType: MimeTypeForPath(relPath),
				Text:     string(content),
			},
		},
	}, nil
}

// isValidNotePath rejects absolute paths and traversal attempts.
func isValidNotePath(path string) bool {
	if path == "" {
		return false
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return false
	}
	// Windows drive prefix.
	if len(path) >= 2 && path[1] == ':' {
		return false
	}

	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// MimeTypeForPath maps a note path to its MIME type.
func MimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".canvas", ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".html", ".htm":
		return "text/html"
	default:
		return "text/plain"
	}
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// queryMetricsSummary heads the query_metrics resource payload.
type queryMetricsSummary struct {
	TotalQueries    int64   `json:"total_queries"`
	TimePeriod      string  `json:"time_period"`
	ZeroResultPct   float64 `json:"zero_result_pct"`
	ColdStartPct    float64 `json:"cold_start_pct"`
	WeightFallbacks int64   `json:"weight_fallbacks"`
}

// queryMetricsOutput is the JSON structure of the query_metrics resource.
type queryMetricsOutput struct {
	Summary             queryMetricsSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	TopTerms            []map[string]any    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
	Repetition          string              `json:"repetition"`
}

// registerQueryMetricsResource registers the query_metrics resource.
// Caller holds s.mu.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         queryMetricsURI,
			Description: "Query pattern telemetry for search tuning",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()

		if metrics == nil {
			return nil, NewInvalidParamsError("query metrics not available")
		}

		snap := metrics.Snapshot()

		output := queryMetricsOutput{
			Summary: queryMetricsSummary{
				TotalQueries:    snap.TotalQueries,
				TimePeriod:      "session",
				ZeroResultPct:   snap.ZeroResultPercentage(),
				ColdStartPct:    snap.ColdStartPercentage(),
				WeightFallbacks: snap.WeightFallbackCount,
			},
			QueryTypeCounts:     snap.QueryTypeCounts,
			TopTerms:            make([]map[string]any, 0, len(snap.TopTerms)),
			ZeroResultQueries:   snap.ZeroResultQueries,
			LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
			Repetition:          snap.RepetitionSummary(),
		}
		for _, tc := range snap.TopTerms {
			output.TopTerms = append(output.TopTerms, map[string]any{
				"term":  tc.Term,
				"count": tc.Count,
			})
		}
		for bucket, count := range snap.LatencyDistribution {
			output.LatencyDistribution[string(bucket)] = count
		}

		content, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      queryMetricsURI,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}
