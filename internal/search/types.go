// Package search implements hybrid retrieval over an indexed vault.
//
// A query fans out to the lexical index and the vector index, the two ranked
// lists are merged by weighted reciprocal rank into a candidate pool, each
// candidate's channel scores are fused into one relevance score with a
// bounded heuristic prior, and the pool is diversity-reranked before results
// go back to the caller.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/vaultrank/vaultrank/internal/store"
)

// Searcher is the engine surface consumed by the MCP server and the CLI.
type Searcher interface {
	// Search executes a hybrid query and returns ranked, diversity-filtered
	// results.
	Search(ctx context.Context, query string, opts SearchOptions) (*Response, error)

	// Index adds chunk records to the lexical index, the vector index, and
	// the metadata store.
	Index(ctx context.Context, recs []*store.Record) error

	// Delete removes chunk records from all indices.
	Delete(ctx context.Context, chunkIDs []string) error

	// Stats returns engine statistics.
	Stats() *EngineStats

	// Close releases all resources.
	Close() error
}

// ChannelScores holds the per-channel raw relevance scores of a candidate.
// Every score is rank-normalized to [0, 1] by the index that produced it;
// a channel the candidate did not match is simply 0.
type ChannelScores struct {
	Path   float64 `json:"path"`
	Short  float64 `json:"short"`
	Title  float64 `json:"title"`
	Body   float64 `json:"body"`
	Vector float64 `json:"vector"`
}

// Candidate is one retrieved chunk flowing through fusion and reranking.
// Candidates are created per query and discarded with the response.
type Candidate struct {
	ChunkID     string `json:"chunk_id"`
	DocID       string `json:"doc_id"`
	Path        string `json:"path"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`

	Channels  ChannelScores `json:"channels"`
	Embedding []float32     `json:"-"`

	// PriorScore is the signed sum of the heuristic prior terms, exposed
	// for score-breakdown display alongside its clamped multiplicative
	// effect on FinalScore.
	PriorScore float64 `json:"prior_score"`

	// FinalScore is the fused relevance score the ranking sorts by.
	FinalScore float64 `json:"final_score"`

	// MatchedTerms are the lexical query terms that hit this candidate.
	MatchedTerms []string `json:"matched_terms,omitempty"`

	// pos is the candidate's position in the merged pool order, used to
	// break FinalScore ties deterministically.
	pos int
}

// SourceKey returns the case-normalized source identity used for diversity
// penalties and per-source caps.
func (c *Candidate) SourceKey() string {
	return strings.ToLower(c.Path)
}

// Response is the outcome of one search request.
type Response struct {
	RequestID string        `json:"request_id"`
	Query     string        `json:"query"`
	QueryType QueryType     `json:"query_type"`
	ColdStart bool          `json:"cold_start,omitempty"`
	Took      time.Duration `json:"took"`
	Results   []*Candidate  `json:"results"`
}

// SearchOptions configures a single query.
type SearchOptions struct {
	// Limit is the maximum number of results to return (default 10).
	Limit int

	// Tag selects the weight profile and tag-specific path boosts.
	Tag string

	// LexicalOnly skips embedding and vector search entirely.
	LexicalOnly bool

	// MaxPerSource caps results per source file after reranking.
	// 0 uses the engine default; negative disables the cap.
	MaxPerSource int

	// Scopes restricts results to paths under any of these prefixes.
	Scopes []string

	// Types restricts results to these content types (code, prose, mixed).
	Types []string
}

// EngineStats reports index sizes.
type EngineStats struct {
	Lexical *store.IndexStats `json:"lexical"`
	Vectors int               `json:"vectors"`
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit is the result count when the caller does not set one.
	DefaultLimit int

	// MaxLimit bounds the requested result count.
	MaxLimit int

	// PoolSize is how many candidates each index contributes before fusion.
	PoolSize int

	// RRFConstant is the smoothing constant for the rank merge.
	RRFConstant int

	// Alpha balances relevance against redundancy in the reranker.
	Alpha float64

	// PerSourcePenalty is the reranker's repeat-source penalty.
	PerSourcePenalty float64

	// MaxPerSource caps results per source file; 0 disables.
	MaxPerSource int

	// ColdStartFraction is the vector weight increase applied when the
	// query is lexically sparse.
	ColdStartFraction float64

	// ColdStartThreshold is the lexical hit count below which a query
	// counts as lexically sparse.
	ColdStartThreshold int

	// SearchTimeout bounds one search request.
	SearchTimeout time.Duration
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:       10,
		MaxLimit:           100,
		PoolSize:           60,
		RRFConstant:        DefaultRRFConstant,
		Alpha:              DefaultAlpha,
		PerSourcePenalty:   DefaultPerSourcePenalty,
		MaxPerSource:       0,
		ColdStartFraction:  DefaultColdStartFraction,
		ColdStartThreshold: 3,
		SearchTimeout:      5 * time.Second,
	}
}

// QueryType is the classification category of a search query.
type QueryType string

const (
	// QueryTypeShortNumeric marks short queries or ones carrying digits,
	// where exact lexical matching dominates.
	QueryTypeShortNumeric QueryType = "SHORT_NUMERIC"

	// QueryTypeCode marks queries containing programming constructs.
	QueryTypeCode QueryType = "CODE"

	// QueryTypeDocumentation marks how-to and explanation queries.
	QueryTypeDocumentation QueryType = "DOCUMENTATION"

	// QueryTypeGeneral is the fallback for everything else.
	QueryTypeGeneral QueryType = "GENERAL"
)

// RRFWeights are the dense/sparse weights for the rank merge of the vector
// and lexical result lists.
type RRFWeights struct {
	Dense  float64 `json:"dense"`
	Sparse float64 `json:"sparse"`
}

// RRFWeightsForQueryType returns the static merge weights for a query type.
func RRFWeightsForQueryType(qt QueryType) RRFWeights {
	switch qt {
	case QueryTypeShortNumeric:
		return RRFWeights{Dense: 0.4, Sparse: 0.6}
	case QueryTypeCode:
		return RRFWeights{Dense: 0.5, Sparse: 0.5}
	default:
		return RRFWeights{Dense: 0.6, Sparse: 0.4}
	}
}

// Classifier assigns a query type and rank-merge weights to a query.
type Classifier interface {
	Classify(ctx context.Context, query string) (QueryType, RRFWeights, error)
}
