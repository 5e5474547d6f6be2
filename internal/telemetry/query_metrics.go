// Package telemetry collects local query statistics for tuning search
// behavior. Nothing leaves the machine: aggregates live in memory and
// flush into the vault's metadata database.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a histogram bucket for query latency.
type LatencyBucket string

const (
	BucketUnder10  LatencyBucket = "<10ms"
	Bucket10to50   LatencyBucket = "10-50ms"
	Bucket50to100  LatencyBucket = "50-100ms"
	Bucket100to500 LatencyBucket = "100-500ms"
	BucketOver500  LatencyBucket = ">=500ms"
)

// bucketEdges lists the histogram in ascending order; upperMs is the
// exclusive upper bound in milliseconds, with the last entry open-ended.
var bucketEdges = []struct {
	upperMs int64
	bucket  LatencyBucket
}{
	{10, BucketUnder10},
	{50, Bucket10to50},
	{100, Bucket50to100},
	{500, Bucket100to500},
	{math.MaxInt64, BucketOver500},
}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	for _, edge := range bucketEdges {
		if ms < edge.upperMs {
			return edge.bucket
		}
	}
	return BucketOver500
}

// LatencyBuckets returns the histogram buckets in ascending order, for
// callers that render the distribution.
func LatencyBuckets() []LatencyBucket {
	buckets := make([]LatencyBucket, len(bucketEdges))
	for i, edge := range bucketEdges {
		buckets[i] = edge.bucket
	}
	return buckets
}

// QueryEvent captures one executed search for telemetry recording.
// QueryType carries the classifier's category name; telemetry treats
// it as an opaque label.
type QueryEvent struct {
	RequestID   string
	Query       string
	QueryType   string
	ResultCount int
	ColdStart   bool
	// WeightFallback marks that ranking used built-in default weights
	// because the configured profile source was missing or unreadable.
	WeightFallback bool
	Latency        time.Duration
	Timestamp      time.Time
}

// IsZeroResult reports whether the query returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ZeroResultQuery is a zero-result query awaiting persistence.
type ZeroResultQuery struct {
	Query     string
	Timestamp time.Time
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu    sync.RWMutex
	ring  []T
	next  int // write cursor
	count int
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{ring: make([]T, capacity)}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.next] = item
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
}

// Items returns the buffer contents oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, 0, b.count)
	if b.count < len(b.ring) {
		// Not yet wrapped: contents start at index 0.
		return append(out, b.ring[:b.count]...)
	}
	out = append(out, b.ring[b.next:]...)
	return append(out, b.ring[:b.next]...)
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Clear empties the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next, b.count = 0, 0
}

// minTermLength filters noise words out of term tracking.
const minTermLength = 3

// ExtractTerms splits a query into trackable terms: lowercased,
// punctuation-trimmed, minimum three characters.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if w = strings.Trim(w, `.,;:!?"'()[]{}`); len(w) >= minTermLength {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount pairs a term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryMetricsSnapshot is an immutable view of the collected metrics.
type QueryMetricsSnapshot struct {
	QueryTypeCounts     map[string]int64        `json:"query_type_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ColdStartCount      int64                   `json:"cold_start_count"`
	WeightFallbackCount int64                   `json:"weight_fallback_count"`
	Since               time.Time               `json:"since"`

	ExactRepeatCount  int64   `json:"exact_repeat_count"`
	ExactRepeatRate   float64 `json:"exact_repeat_rate"`
	SimilarQueryCount int64   `json:"similar_query_count"`
	SimilarQueryRate  float64 `json:"similar_query_rate"`
	UniqueQueryCount  int64   `json:"unique_query_count"`
}

func (s *QueryMetricsSnapshot) share(n int64) float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(n) / float64(s.TotalQueries) * 100
}

// ZeroResultPercentage returns the share of queries with no results.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	return s.share(s.ZeroResultCount)
}

// ColdStartPercentage returns the share of queries answered while the
// lexical index was still sparse.
func (s *QueryMetricsSnapshot) ColdStartPercentage() float64 {
	return s.share(s.ColdStartCount)
}

// RepetitionSummary renders the repetition metrics for display.
func (s *QueryMetricsSnapshot) RepetitionSummary() string {
	if s.TotalQueries == 0 {
		return "no queries recorded"
	}
	return fmt.Sprintf("exact=%.1f%%, similar=%.1f%%, unique=%d",
		s.ExactRepeatRate*100, s.SimilarQueryRate*100, s.UniqueQueryCount)
}

// QueryMetricsStore persists aggregated query metrics. The Save and
// Upsert methods are additive: each call adds the given deltas to what
// is already stored. Dates are "2006-01-02" strings and ranges are
// inclusive.
type QueryMetricsStore interface {
	SaveQueryTypeCounts(date string, counts map[string]int64) error
	GetQueryTypeCounts(from, to string) (map[string]int64, error)

	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)

	AddZeroResultQuery(query string, timestamp time.Time) error
	GetZeroResultQueries(limit int) ([]string, error)

	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	Close() error
}

// QueryMetricsConfig configures the collector.
type QueryMetricsConfig struct {
	TopTermsCapacity    int           // max terms tracked in memory
	ZeroResultsCapacity int           // max zero-result queries kept
	FlushInterval       time.Duration // 0 disables auto-flush

	RecentQueriesCapacity    int     // queries tracked for exact-repeat detection
	RecentEmbeddingsCapacity int     // embeddings sampled for similarity
	SimilarityThreshold      float64 // cosine similarity above this counts as a repeat
}

// normalize replaces non-positive knobs with their defaults.
func (c *QueryMetricsConfig) normalize() {
	defaults := DefaultQueryMetricsConfig()
	clamp := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	clamp(&c.TopTermsCapacity, defaults.TopTermsCapacity)
	clamp(&c.ZeroResultsCapacity, defaults.ZeroResultsCapacity)
	clamp(&c.RecentQueriesCapacity, defaults.RecentQueriesCapacity)
	clamp(&c.RecentEmbeddingsCapacity, defaults.RecentEmbeddingsCapacity)
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = defaults.SimilarityThreshold
	}
}

// DefaultQueryMetricsConfig returns the default collector configuration.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:         100,
		ZeroResultsCapacity:      100,
		FlushInterval:            60 * time.Second,
		RecentQueriesCapacity:    500,
		RecentEmbeddingsCapacity: 10,
		SimilarityThreshold:      0.95,
	}
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	queryTypes          map[string]int64
	topTerms            *lru.Cache[string, int64]
	zeroResults         *CircularBuffer[string]
	latencies           map[LatencyBucket]int64
	totalQueries        int64
	zeroResultCount     int64
	coldStartCount      int64
	weightFallbackCount int64
	startTime           time.Time

	// Repetition tracking. Exact repeats are detected by query hash,
	// similar queries by cosine similarity against a small embedding
	// sample.
	recentQueries     *lru.Cache[string, struct{}]
	exactRepeatCount  int64
	recentEmbeddings  *CircularBuffer[[]float32]
	similarQueryCount int64

	// Flush bookkeeping. The store's upserts are additive, so each
	// flush sends only the counts accumulated since the last one.
	store            QueryMetricsStore
	config           QueryMetricsConfig
	flushedTypes     map[string]int64
	flushedLatencies map[LatencyBucket]int64
	flushedTerms     map[string]int64
	pendingZero      []ZeroResultQuery

	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a collector with default configuration. A
// nil store keeps metrics in memory only.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a collector with the given
// configuration.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	cfg.normalize()

	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		queryTypes:       make(map[string]int64),
		topTerms:         terms,
		zeroResults:      NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:        make(map[LatencyBucket]int64),
		startTime:        time.Now(),
		recentQueries:    recent,
		recentEmbeddings: NewCircularBuffer[[]float32](cfg.RecentEmbeddingsCapacity),
		store:            store,
		config:           cfg,
		flushedTypes:     make(map[string]int64),
		flushedLatencies: make(map[LatencyBucket]int64),
		flushedTerms:     make(map[string]int64),
		stopCh:           make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one search query. Non-blocking and safe to call from
// request goroutines.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.queryTypes[event.QueryType]++
	m.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		prev, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, prev+1)
	}

	if event.IsZeroResult() {
		m.recordZeroResult(event)
	}
	if event.ColdStart {
		m.coldStartCount++
	}
	if event.WeightFallback {
		m.weightFallbackCount++
	}

	m.latencies[LatencyToBucket(event.Latency)]++

	key := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

// recordZeroResult queues the query for display and persistence. The
// pending queue is bounded the same way the display buffer is.
func (m *QueryMetrics) recordZeroResult(event QueryEvent) {
	m.zeroResults.Add(event.Query)
	m.zeroResultCount++

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if len(m.pendingZero) >= m.config.ZeroResultsCapacity {
		m.pendingZero = m.pendingZero[1:]
	}
	m.pendingZero = append(m.pendingZero, ZeroResultQuery{Query: event.Query, Timestamp: ts})
}

// hashQuery normalizes and hashes a query for repeat detection.
func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// RecordQueryEmbedding samples a query embedding for similarity
// tracking. Optional; without it only exact repeats are counted.
func (m *QueryMetrics) RecordQueryEmbedding(embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	for _, prev := range m.recentEmbeddings.Items() {
		if cosineSimilarity(embedding, prev) > m.config.SimilarityThreshold {
			m.similarQueryCount++
			break
		}
	}

	m.recentEmbeddings.Add(append([]float32(nil), embedding...))
}

// cosineSimilarity returns 0 for empty or mismatched vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		na += float64(x) * float64(x)
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Snapshot returns the current metrics for reporting.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *QueryMetrics) snapshotLocked() *QueryMetricsSnapshot {
	snap := &QueryMetricsSnapshot{
		QueryTypeCounts:     maps.Clone(m.queryTypes),
		TopTerms:            m.liveTermCounts(),
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: maps.Clone(m.latencies),
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		ColdStartCount:      m.coldStartCount,
		WeightFallbackCount: m.weightFallbackCount,
		Since:               m.startTime,
		ExactRepeatCount:    m.exactRepeatCount,
		SimilarQueryCount:   m.similarQueryCount,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
	}
	sort.Slice(snap.TopTerms, func(i, j int) bool {
		a, b := snap.TopTerms[i], snap.TopTerms[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Term < b.Term
	})

	if m.totalQueries > 0 {
		snap.ExactRepeatRate = float64(m.exactRepeatCount) / float64(m.totalQueries)
		snap.SimilarQueryRate = float64(m.similarQueryCount) / float64(m.totalQueries)
	}
	return snap
}

// liveTermCounts reads the term LRU without disturbing recency order.
func (m *QueryMetrics) liveTermCounts() []TermCount {
	var out []TermCount
	for _, term := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(term); ok {
			out = append(out, TermCount{Term: term, Count: n})
		}
	}
	return out
}

// Flush persists the counts accumulated since the previous flush. Safe
// to call with no store configured.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

// positiveDeltas returns current minus already-flushed, keeping only
// entries that actually grew.
func positiveDeltas[K comparable](current, flushed map[K]int64) map[K]int64 {
	delta := make(map[K]int64)
	for k, n := range current {
		if d := n - flushed[k]; d > 0 {
			delta[k] = d
		}
	}
	return delta
}

func (m *QueryMetrics) flushLocked() error {
	today := time.Now().Format("2006-01-02")

	if delta := positiveDeltas(m.queryTypes, m.flushedTypes); len(delta) > 0 {
		if err := m.store.SaveQueryTypeCounts(today, delta); err != nil {
			return err
		}
		for qt, d := range delta {
			m.flushedTypes[qt] += d
		}
	}

	// Terms evicted from the LRU between flushes lose any unflushed
	// increments. The marker map is rebuilt from live terms afterwards
	// so evicted entries do not pin memory.
	live := make(map[string]int64, m.topTerms.Len())
	for _, tc := range m.liveTermCounts() {
		live[tc.Term] = tc.Count
	}
	if delta := positiveDeltas(live, m.flushedTerms); len(delta) > 0 {
		if err := m.store.UpsertTermCounts(delta); err != nil {
			return err
		}
	}
	m.flushedTerms = live

	if delta := positiveDeltas(m.latencies, m.flushedLatencies); len(delta) > 0 {
		if err := m.store.SaveLatencyCounts(today, delta); err != nil {
			return err
		}
		for bucket, d := range delta {
			m.flushedLatencies[bucket] += d
		}
	}

	for i, zq := range m.pendingZero {
		if err := m.store.AddZeroResultQuery(zq.Query, zq.Timestamp); err != nil {
			m.pendingZero = m.pendingZero[i:]
			return err
		}
	}
	m.pendingZero = m.pendingZero[:0]

	return nil
}

// Close stops auto-flush, performs a final flush, and rejects further
// recording. Idempotent.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	return m.Flush()
}
