package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vaultrank/vaultrank/internal/chunk"
	"github.com/vaultrank/vaultrank/internal/embed"
	vrerrors "github.com/vaultrank/vaultrank/internal/errors"
	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/internal/telemetry"
	"github.com/vaultrank/vaultrank/internal/weights"
)

// Engine executes hybrid queries: lexical and vector retrieval in parallel,
// rank merge into a candidate pool, weighted score fusion with heuristic
// priors, then diversity reranking.
type Engine struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	metadata store.MetadataStore
	embedder embed.Embedder
	weights  *weights.Provider
	config   EngineConfig

	classifier Classifier
	breaker    *vrerrors.CircuitBreaker
	fuser      *Fuser
	merger     *RRFMerger
	mmr        *MMR
	priors     *PriorScorer
	expander   *QueryExpander
	metrics    *telemetry.QueryMetrics
	logger     *slog.Logger

	mu sync.RWMutex
}

var _ Searcher = (*Engine)(nil)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Embedding prefixes for nomic-style models: documents and queries are
// embedded with different task prefixes.
const (
	queryEmbedPrefix    = "search_query: "
	documentEmbedPrefix = "search_document: "
)

func formatQueryForEmbedding(query string) string {
	return queryEmbedPrefix + query
}

func formatDocumentForEmbedding(text string) string {
	return documentEmbedPrefix + text
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithClassifier replaces the default cached rule classifier.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithMetrics sets an optional query telemetry collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithQueryExpander sets an optional expander applied to the lexical side
// of the query fan-out.
func WithQueryExpander(exp *QueryExpander) EngineOption {
	return func(e *Engine) {
		e.expander = exp
	}
}

// WithPriorScorer replaces the default prior scorer, typically to register
// tag path patterns from configuration.
func WithPriorScorer(p *PriorScorer) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.priors = p
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a hybrid search engine. All storage dependencies, the
// embedder, and the weight provider are required.
func NewEngine(
	lexical store.LexicalIndex,
	vector store.VectorIndex,
	metadata store.MetadataStore,
	embedder embed.Embedder,
	provider *weights.Provider,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if metadata == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: weight provider is required", ErrNilDependency)
	}

	e := &Engine{
		lexical:    lexical,
		vector:     vector,
		metadata:   metadata,
		embedder:   embedder,
		weights:    provider,
		config:     config,
		classifier: NewCachedClassifier(),
		breaker:    vrerrors.NewCircuitBreaker("embedder"),
		fuser:      NewFuserWithColdStart(config.ColdStartFraction),
		merger:     NewRRFMergerWithK(config.RRFConstant),
		mmr:        NewMMRWithParams(config.Alpha, config.PerSourcePenalty),
		priors:     NewPriorScorer(nil),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes one hybrid query.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, vrerrors.New(vrerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}

	if e.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.SearchTimeout)
		defer cancel()
	}

	requestID := newRequestID()
	opts = e.applyDefaults(opts)

	qt, rrfWeights := e.classify(ctx, query)
	profile := e.weights.Resolve(opts.Tag)

	lexHits, vecHits, searchErr := e.parallelSearch(ctx, query, opts)
	if searchErr != nil {
		if lexHits == nil && vecHits == nil {
			return nil, vrerrors.New(vrerrors.ErrCodeSearchFailed, "all retrieval channels failed", searchErr)
		}
		e.logger.Warn("retrieval channel degraded",
			slog.String("request_id", requestID),
			slog.String("error", searchErr.Error()))
	}

	coldStart := !opts.LexicalOnly &&
		len(vecHits) > 0 &&
		len(lexHits) < e.config.ColdStartThreshold

	pool, err := e.buildPool(ctx, lexHits, vecHits, rrfWeights)
	if err != nil {
		return nil, err
	}

	e.fuser.FuseAll(pool, profile, func(c *Candidate) []PriorTerm {
		return e.priors.Terms(c, opts.Tag)
	}, coldStart)

	pool = ApplyFilters(pool, opts)

	results := e.mmr.Rerank(pool, opts.Limit)
	if cap := e.sourceCap(opts); cap > 0 {
		results = CapPerSource(results, cap)
	}

	took := time.Since(start)
	e.recordMetrics(requestID, query, qt, len(results), coldStart, took)

	return &Response{
		RequestID: requestID,
		Query:     query,
		QueryType: qt,
		ColdStart: coldStart,
		Took:      took,
		Results:   results,
	}, nil
}

// classify resolves the query type and rank-merge weights. Classifier
// failures fall back to the general profile.
func (e *Engine) classify(ctx context.Context, query string) (QueryType, RRFWeights) {
	qt, w, err := e.classifier.Classify(ctx, query)
	if err != nil {
		e.logger.Debug("query classification failed, using general profile",
			slog.String("error", err.Error()))
		return QueryTypeGeneral, RRFWeightsForQueryType(QueryTypeGeneral)
	}
	return qt, w
}

// applyDefaults fills in default values for search options.
func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	return opts
}

// sourceCap resolves the per-source cap for this request. Negative option
// values disable the cap entirely.
func (e *Engine) sourceCap(opts SearchOptions) int {
	if opts.MaxPerSource < 0 {
		return 0
	}
	if opts.MaxPerSource > 0 {
		return opts.MaxPerSource
	}
	return e.config.MaxPerSource
}

// parallelSearch runs the lexical and vector retrievals concurrently.
// A single failing side degrades the search instead of failing it; only
// both sides failing is an error.
func (e *Engine) parallelSearch(ctx context.Context, query string, opts SearchOptions) (
	lexHits []*store.LexicalHit,
	vecHits []*store.VectorHit,
	err error,
) {
	lexQuery := query
	if e.expander != nil {
		lexQuery = e.expander.Expand(query)
		if lexQuery != query {
			e.logger.Debug("query expanded for lexical search",
				slog.String("original", query),
				slog.String("expanded", lexQuery))
		}
	}

	if opts.LexicalOnly {
		hits, lexErr := e.lexical.Search(ctx, lexQuery, e.config.PoolSize)
		if lexErr != nil {
			return nil, nil, lexErr
		}
		return hits, nil, nil
	}

	vectorDisabled := false
	if dimErr := e.validateDimensions(ctx); dimErr != nil {
		e.logger.Warn("embedding dimension mismatch, vector search disabled",
			slog.String("error", dimErr.Error()),
			slog.String("recovery", "vaultrank ingest --rebuild"))
		vectorDisabled = true
	}

	g, gctx := errgroup.WithContext(ctx)
	var lexErr, vecErr error

	g.Go(func() error {
		var searchErr error
		lexHits, searchErr = e.lexical.Search(gctx, lexQuery, e.config.PoolSize)
		if searchErr != nil {
			lexErr = searchErr
		}
		return nil
	})

	if !vectorDisabled {
		g.Go(func() error {
			if !e.breaker.Allow() {
				vecErr = vrerrors.ErrCircuitOpen
				return nil
			}
			embedding, embedErr := e.embedder.Embed(gctx, formatQueryForEmbedding(query))
			if embedErr != nil {
				// Cancellation says nothing about embedder health.
				if !errors.Is(embedErr, context.Canceled) && !errors.Is(embedErr, context.DeadlineExceeded) {
					e.breaker.RecordFailure()
				}
				vecErr = embedErr
				return nil
			}
			e.breaker.RecordSuccess()
			e.recordQueryEmbedding(embedding)
			var searchErr error
			vecHits, searchErr = e.vector.Search(gctx, embedding, e.config.PoolSize)
			if searchErr != nil {
				vecErr = searchErr
			}
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if lexErr != nil && vecErr != nil {
		return nil, nil, errors.Join(lexErr, vecErr)
	}
	if lexErr != nil {
		err = lexErr
	} else if vecErr != nil {
		err = vecErr
	}
	return lexHits, vecHits, err
}

// buildPool merges the two ranked hit lists into the candidate pool in
// canonical order and enriches candidates from the metadata store. Hits
// without a metadata record are orphans from an incomplete delete and get
// filtered out.
func (e *Engine) buildPool(ctx context.Context, lexHits []*store.LexicalHit, vecHits []*store.VectorHit, w RRFWeights) ([]*Candidate, error) {
	if len(lexHits) == 0 && len(vecHits) == 0 {
		return nil, nil
	}

	byID := make(map[string]*Candidate, len(lexHits)+len(vecHits))
	sparseIDs := make([]string, 0, len(lexHits))
	for _, h := range lexHits {
		c := &Candidate{
			ChunkID: h.ChunkID,
			Channels: ChannelScores{
				Path:  h.Path,
				Short: h.Short,
				Title: h.Title,
				Body:  h.Body,
			},
			MatchedTerms: h.MatchedTerms,
		}
		byID[h.ChunkID] = c
		sparseIDs = append(sparseIDs, h.ChunkID)
	}

	denseIDs := make([]string, 0, len(vecHits))
	for _, h := range vecHits {
		c, ok := byID[h.ChunkID]
		if !ok {
			c = &Candidate{ChunkID: h.ChunkID}
			byID[h.ChunkID] = c
		}
		c.Channels.Vector = h.Score
		c.Embedding = h.Embedding
		denseIDs = append(denseIDs, h.ChunkID)
	}

	order := e.merger.Merge(sparseIDs, denseIDs, w)
	if len(order) > e.config.PoolSize {
		order = order[:e.config.PoolSize]
	}

	recs, err := e.metadata.GetRecords(ctx, order)
	if err != nil {
		return nil, vrerrors.New(vrerrors.ErrCodeSearchFailed, "candidate enrichment failed", err)
	}
	recByID := make(map[string]*store.Record, len(recs))
	for _, r := range recs {
		recByID[r.ChunkID] = r
	}

	pool := make([]*Candidate, 0, len(order))
	for _, id := range order {
		rec, ok := recByID[id]
		if !ok {
			e.logger.Debug("orphan chunk filtered from pool", slog.String("chunk_id", id))
			continue
		}
		c := byID[id]
		c.DocID = rec.DocID
		c.Path = rec.Path
		c.Title = rec.Title
		c.Content = rec.Body
		c.ContentType = rec.ContentType
		if len(c.Embedding) == 0 {
			if vec, ok := e.vector.Lookup(id); ok {
				c.Embedding = vec
			}
		}
		c.pos = len(pool)
		pool = append(pool, c)
	}
	return pool, nil
}

// Index adds chunk records to all indices. Every chunk id is validated
// before anything is written; a malformed id rejects the whole batch.
func (e *Engine) Index(ctx context.Context, recs []*store.Record) error {
	if len(recs) == 0 {
		return nil
	}

	for _, r := range recs {
		if err := chunk.ValidateChunkID(r.ChunkID); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	texts := make([]string, len(recs))
	ids := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = formatDocumentForEmbedding(embedText(r))
		ids[i] = r.ChunkID
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return vrerrors.New(vrerrors.ErrCodeEmbeddingFailed, "batch embedding failed", err)
	}

	if err := e.lexical.Index(ctx, recs); err != nil {
		return fmt.Errorf("index lexical: %w", err)
	}
	if err := e.vector.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	if err := e.metadata.SaveRecords(ctx, recs); err != nil {
		return fmt.Errorf("save records: %w", err)
	}

	if err := e.storeEmbeddingInfo(ctx); err != nil {
		e.logger.Warn("failed to store index embedding info",
			slog.String("error", err.Error()))
	}
	return nil
}

// storeEmbeddingInfo records the embedder's dimension and model so a later
// embedder change is detected instead of silently searching garbage.
func (e *Engine) storeEmbeddingInfo(ctx context.Context) error {
	dim := fmt.Sprintf("%d", e.embedder.Dimensions())
	if err := e.metadata.SetState(ctx, store.StateKeyIndexDimension, dim); err != nil {
		return err
	}
	return e.metadata.SetState(ctx, store.StateKeyIndexModel, e.embedder.ModelName())
}

// validateDimensions compares the stored index dimension with the current
// embedder. A missing stored dimension (fresh index) passes.
func (e *Engine) validateDimensions(ctx context.Context) error {
	stored, err := e.metadata.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil || stored == "" {
		return nil
	}

	var indexDim int
	if _, err := fmt.Sscanf(stored, "%d", &indexDim); err != nil {
		e.logger.Warn("invalid stored index dimension", slog.String("value", stored))
		return nil
	}

	if current := e.embedder.Dimensions(); indexDim != current {
		storedModel, _ := e.metadata.GetState(ctx, store.StateKeyIndexModel)
		return vrerrors.New(vrerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index built with %d dimensions (%s), current embedder produces %d (%s)",
				indexDim, storedModel, current, e.embedder.ModelName()), nil)
	}
	return nil
}

// Delete removes chunks from all indices. Lexical and vector deletes are
// best effort; the metadata store is the source of truth and must succeed.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.lexical.Delete(ctx, chunkIDs); err != nil {
		e.logger.Warn("lexical delete failed, orphans remain until rebuild",
			slog.String("error", err.Error()),
			slog.Int("count", len(chunkIDs)))
	}
	if err := e.vector.Delete(ctx, chunkIDs); err != nil {
		e.logger.Warn("vector delete failed, orphans remain until rebuild",
			slog.String("error", err.Error()),
			slog.Int("count", len(chunkIDs)))
	}
	if err := e.metadata.DeleteRecords(ctx, chunkIDs); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// Stats returns engine statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return &EngineStats{
		Lexical: e.lexical.Stats(),
		Vectors: e.vector.Count(),
	}
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.lexical.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.metadata.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// recordQueryEmbedding feeds the query vector into similarity-based
// repeat tracking.
func (e *Engine) recordQueryEmbedding(vec []float32) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordQueryEmbedding(vec)
}

func (e *Engine) recordMetrics(requestID, query string, qt QueryType, resultCount int, coldStart bool, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		RequestID:      requestID,
		Query:          query,
		QueryType:      string(qt),
		ResultCount:    resultCount,
		ColdStart:      coldStart,
		WeightFallback: e.weights.UsedFallback(),
		Latency:        latency,
		Timestamp:      time.Now(),
	})
}

// newRequestID returns a short id for log correlation.
func newRequestID() string {
	return uuid.NewString()[:8]
}
