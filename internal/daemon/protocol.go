package daemon

import (
	"encoding/json"
	"fmt"
)

// RPC method names.
const (
	MethodSearch = "search"
	MethodStatus = "status"
	MethodPing   = "ping"
)

// Error codes defined by JSON-RPC 2.0.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Daemon-specific error codes.
const (
	ErrCodeVaultNotIndexed = -32001
	ErrCodeSearchFailed    = -32002
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse wraps result in a response envelope.
func NewSuccessResponse(id string, result any) Response {
	return Response{JSONRPC: "2.0", Result: result, ID: id}
}

// NewErrorResponse wraps an error code and message in a response
// envelope.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id}
}

// rebind round-trips a decoded-as-any JSON value into a typed struct.
// Both params (server side) and results (client side) arrive untyped.
func rebind(raw, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}

// SearchParams are the parameters for the search method. Vault and
// Query are required; the rest mirror the CLI search flags.
type SearchParams struct {
	// Vault is the vault root path.
	Vault string `json:"vault"`

	// Query is the search query.
	Query string `json:"query"`

	// Limit caps the result count. Zero uses the vault's configured
	// default.
	Limit int `json:"limit,omitempty"`

	// Tag selects a channel weight profile.
	Tag string `json:"tag,omitempty"`

	// Scopes restricts results to path prefixes.
	Scopes []string `json:"scopes,omitempty"`

	// Types restricts results to content types (code, prose, mixed).
	Types []string `json:"types,omitempty"`

	// LexicalOnly skips embedding and vector search.
	LexicalOnly bool `json:"lexical_only,omitempty"`

	// MaxPerSource caps results per note. Zero uses the engine
	// default, -1 disables the cap.
	MaxPerSource int `json:"max_per_source,omitempty"`
}

// Validate checks required fields and corrects a negative limit.
func (p *SearchParams) Validate() error {
	switch {
	case p.Query == "":
		return fmt.Errorf("query is required")
	case p.Vault == "":
		return fmt.Errorf("vault is required")
	case p.Limit < 0:
		p.Limit = 0
	}
	return nil
}

// SearchReply is the result of one search request.
type SearchReply struct {
	RequestID string         `json:"request_id"`
	Query     string         `json:"query"`
	QueryType string         `json:"query_type"`
	ColdStart bool           `json:"cold_start,omitempty"`
	TookMS    int64          `json:"took_ms"`
	Results   []SearchResult `json:"results"`
}

// SearchResult is a single ranked chunk.
type SearchResult struct {
	ChunkID      string           `json:"chunk_id"`
	Path         string           `json:"path"`
	Title        string           `json:"title,omitempty"`
	Content      string           `json:"content"`
	ContentType  string           `json:"content_type,omitempty"`
	Score        float64          `json:"score"`
	Prior        float64          `json:"prior,omitempty"`
	Channels     ChannelBreakdown `json:"channels"`
	MatchedTerms []string         `json:"matched_terms,omitempty"`
}

// ChannelBreakdown carries the per-channel scores behind a result.
type ChannelBreakdown struct {
	Path   float64 `json:"path,omitempty"`
	Short  float64 `json:"short,omitempty"`
	Title  float64 `json:"title,omitempty"`
	Body   float64 `json:"body,omitempty"`
	Vector float64 `json:"vector,omitempty"`
}

// StatusResult describes the running daemon.
type StatusResult struct {
	Running        bool     `json:"running"`
	PID            int      `json:"pid"`
	Uptime         string   `json:"uptime"`
	EmbedderModel  string   `json:"embedder_model"`
	EmbedderStatus string   `json:"embedder_status"` // "ready" or "unavailable"
	VaultsLoaded   int      `json:"vaults_loaded"`
	Vaults         []string `json:"vaults,omitempty"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
