package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore accumulates everything flushed to it. Guarded by a
// mutex because the auto-flush test reads while the flush goroutine
// writes.
type recordingStore struct {
	mu         sync.Mutex
	typeCounts map[string]int64
	termCounts map[string]int64
	latencies  map[LatencyBucket]int64
	zero       []string
	failSaves  bool
}

var _ QueryMetricsStore = (*recordingStore)(nil)

func newRecordingStore() *recordingStore {
	return &recordingStore{
		typeCounts: make(map[string]int64),
		termCounts: make(map[string]int64),
		latencies:  make(map[LatencyBucket]int64),
	}
}

func (r *recordingStore) SaveQueryTypeCounts(_ string, counts map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaves {
		return fmt.Errorf("store unavailable")
	}
	for qt, c := range counts {
		r.typeCounts[qt] += c
	}
	return nil
}

func (r *recordingStore) GetQueryTypeCounts(_, _ string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.typeCounts))
	for k, v := range r.typeCounts {
		out[k] = v
	}
	return out, nil
}

func (r *recordingStore) UpsertTermCounts(terms map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for term, c := range terms {
		r.termCounts[term] += c
	}
	return nil
}

func (r *recordingStore) GetTopTerms(int) ([]TermCount, error) { return nil, nil }

func (r *recordingStore) AddZeroResultQuery(query string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zero = append(r.zero, query)
	return nil
}

func (r *recordingStore) GetZeroResultQueries(int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.zero...), nil
}

func (r *recordingStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for b, c := range counts {
		r.latencies[b] += c
	}
	return nil
}

func (r *recordingStore) GetLatencyCounts(_, _ string) (map[LatencyBucket]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[LatencyBucket]int64, len(r.latencies))
	for k, v := range r.latencies {
		out[k] = v
	}
	return out, nil
}

func (r *recordingStore) Close() error { return nil }

// typeCount reads one counter under the lock.
func (r *recordingStore) typeCount(qt string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typeCounts[qt]
}

// termCount reads one term counter under the lock.
func (r *recordingStore) termCount(term string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.termCounts[term]
}

// zeroQueries copies the zero-result list under the lock.
func (r *recordingStore) zeroQueries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.zero...)
}

// setFailSaves toggles save failures under the lock.
func (r *recordingStore) setFailSaves(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSaves = fail
}

// newTestMetrics builds a collector without the auto-flush goroutine.
func newTestMetrics(store QueryMetricsStore) *QueryMetrics {
	cfg := DefaultQueryMetricsConfig()
	cfg.FlushInterval = 0
	return NewQueryMetricsWithConfig(store, cfg)
}

func event(query, queryType string, results int, latency time.Duration) QueryEvent {
	return QueryEvent{
		RequestID:   "req-1",
		Query:       query,
		QueryType:   queryType,
		ResultCount: results,
		Latency:     latency,
		Timestamp:   time.Now(),
	}
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketUnder10},
		{9 * time.Millisecond, BucketUnder10},
		{10 * time.Millisecond, Bucket10to50},
		{49 * time.Millisecond, Bucket10to50},
		{75 * time.Millisecond, Bucket50to100},
		{300 * time.Millisecond, Bucket100to500},
		{500 * time.Millisecond, BucketOver500},
		{2 * time.Second, BucketOver500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), "latency %v", tt.latency)
	}
}

func TestCircularBuffer(t *testing.T) {
	t.Run("keeps insertion order below capacity", func(t *testing.T) {
		b := NewCircularBuffer[int](5)
		b.Add(1)
		b.Add(2)
		b.Add(3)

		assert.Equal(t, []int{1, 2, 3}, b.Items())
		assert.Equal(t, 3, b.Size())
	})

	t.Run("evicts oldest when full", func(t *testing.T) {
		b := NewCircularBuffer[string](3)
		for _, s := range []string{"a", "b", "c", "d", "e"} {
			b.Add(s)
		}

		assert.Equal(t, []string{"c", "d", "e"}, b.Items())
		assert.Equal(t, 3, b.Size())
	})

	t.Run("clear empties", func(t *testing.T) {
		b := NewCircularBuffer[int](3)
		b.Add(1)
		b.Clear()

		assert.Empty(t, b.Items())
		assert.Equal(t, 0, b.Size())
	})

	t.Run("zero capacity falls back to default", func(t *testing.T) {
		b := NewCircularBuffer[int](0)
		b.Add(1)
		assert.Equal(t, 1, b.Size())
	})
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "lowercases and keeps long words",
			query: "Standup Notes Review",
			want:  []string{"standup", "notes", "review"},
		},
		{
			name:  "drops short words",
			query: "go to the gym",
			want:  []string{"the", "gym"},
		},
		{
			name:  "trims punctuation",
			query: `how to configure? "weights"`,
			want:  []string{"how", "configure", "weights"},
		},
		{
			name:  "empty query",
			query: "   ",
			want:  nil,
		},
		{
			name:  "only short words",
			query: "a b cd",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestQueryMetrics_RecordAggregates(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(event("standup notes", "general", 5, 5*time.Millisecond))
	m.Record(event("func main", "code", 3, 30*time.Millisecond))
	m.Record(event("missing thing", "general", 0, 200*time.Millisecond))

	snap := m.Snapshot()

	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.QueryTypeCounts["general"])
	assert.Equal(t, int64(1), snap.QueryTypeCounts["code"])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"missing thing"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketUnder10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[Bucket10to50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[Bucket100to500])
	assert.InDelta(t, 33.3, snap.ZeroResultPercentage(), 0.1)
}

func TestQueryMetrics_TracksColdStarts(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	cold := event("fresh vault", "general", 2, time.Millisecond)
	cold.ColdStart = true
	m.Record(cold)
	m.Record(event("warm vault", "general", 2, time.Millisecond))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ColdStartCount)
	assert.InDelta(t, 50.0, snap.ColdStartPercentage(), 0.01)
}

func TestQueryMetrics_TracksWeightFallbacks(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	degraded := event("missing weights file", "general", 3, time.Millisecond)
	degraded.WeightFallback = true
	m.Record(degraded)
	m.Record(event("healthy weights", "general", 3, time.Millisecond))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.WeightFallbackCount)
}

func TestQueryMetrics_TopTermsSortedByCount(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(event("search weights", "general", 1, time.Millisecond))
	m.Record(event("search fusion", "general", 1, time.Millisecond))
	m.Record(event("search", "general", 1, time.Millisecond))

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "search", Count: 3}, snap.TopTerms[0])
}

func TestQueryMetrics_ExactRepeatDetection(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(event("project roadmap", "general", 4, time.Millisecond))
	// Same query modulo case and whitespace counts as a repeat
	m.Record(event("  Project Roadmap ", "general", 4, time.Millisecond))
	m.Record(event("another query", "general", 4, time.Millisecond))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.InDelta(t, 1.0/3.0, snap.ExactRepeatRate, 1e-9)
	assert.Equal(t, int64(2), snap.UniqueQueryCount)
}

func TestQueryMetrics_SimilarEmbeddingDetection(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(event("first", "general", 1, time.Millisecond))
	m.RecordQueryEmbedding([]float32{1, 0, 0})

	// Nearly identical direction counts as similar
	m.Record(event("second", "general", 1, time.Millisecond))
	m.RecordQueryEmbedding([]float32{0.99, 0.01, 0})

	// Orthogonal does not
	m.Record(event("third", "general", 1, time.Millisecond))
	m.RecordQueryEmbedding([]float32{0, 1, 0})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.SimilarQueryCount)
}

func TestQueryMetrics_RecordQueryEmbedding_IgnoresEmpty(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	m.RecordQueryEmbedding(nil)
	m.RecordQueryEmbedding([]float32{})

	assert.Equal(t, int64(0), m.Snapshot().SimilarQueryCount)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestQueryMetrics_FlushSendsOnlyDeltas(t *testing.T) {
	store := newRecordingStore()
	m := newTestMetrics(store)
	defer func() { _ = m.Close() }()

	m.Record(event("alpha query", "general", 1, time.Millisecond))
	m.Record(event("alpha query", "code", 1, time.Millisecond))

	require.NoError(t, m.Flush())
	assert.Equal(t, int64(1), store.typeCount("general"))
	assert.Equal(t, int64(1), store.typeCount("code"))
	assert.Equal(t, int64(2), store.termCount("alpha"))

	// Nothing new: a second flush must not double-count
	require.NoError(t, m.Flush())
	assert.Equal(t, int64(1), store.typeCount("general"))
	assert.Equal(t, int64(2), store.termCount("alpha"))

	// One more event flushes as a delta of one
	m.Record(event("alpha again", "general", 1, time.Millisecond))
	require.NoError(t, m.Flush())
	assert.Equal(t, int64(2), store.typeCount("general"))
	assert.Equal(t, int64(3), store.termCount("alpha"))
}

func TestQueryMetrics_FlushPersistsZeroResults(t *testing.T) {
	store := newRecordingStore()
	m := newTestMetrics(store)
	defer func() { _ = m.Close() }()

	m.Record(event("nothing here", "general", 0, time.Millisecond))
	m.Record(event("also nothing", "general", 0, time.Millisecond))

	require.NoError(t, m.Flush())
	assert.Equal(t, []string{"nothing here", "also nothing"}, store.zeroQueries())

	// Already persisted entries are not sent again
	require.NoError(t, m.Flush())
	assert.Len(t, store.zeroQueries(), 2)
}

func TestQueryMetrics_FlushErrorKeepsDeltas(t *testing.T) {
	store := newRecordingStore()
	m := newTestMetrics(store)
	defer func() { _ = m.Close() }()

	m.Record(event("alpha query", "general", 1, time.Millisecond))

	store.setFailSaves(true)
	require.Error(t, m.Flush())
	assert.Zero(t, store.typeCount("general"))

	// The failed delta is retried on the next flush
	store.setFailSaves(false)
	require.NoError(t, m.Flush())
	assert.Equal(t, int64(1), store.typeCount("general"))
}

func TestQueryMetrics_FlushWithoutStore(t *testing.T) {
	m := newTestMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(event("query", "general", 1, time.Millisecond))
	assert.NoError(t, m.Flush())
}

func TestQueryMetrics_CloseFlushesAndStopsRecording(t *testing.T) {
	store := newRecordingStore()
	m := newTestMetrics(store)

	m.Record(event("final query", "general", 1, time.Millisecond))
	require.NoError(t, m.Close())
	assert.Equal(t, int64(1), store.typeCount("general"))

	// Close is idempotent and recording after close is a no-op
	require.NoError(t, m.Close())
	m.Record(event("after close", "general", 1, time.Millisecond))
	assert.Equal(t, int64(1), m.Snapshot().TotalQueries)
}

func TestQueryMetrics_AutoFlush(t *testing.T) {
	store := newRecordingStore()
	cfg := DefaultQueryMetricsConfig()
	cfg.FlushInterval = 20 * time.Millisecond
	m := NewQueryMetricsWithConfig(store, cfg)
	defer func() { _ = m.Close() }()

	m.Record(event("periodic", "general", 1, time.Millisecond))

	assert.Eventually(t, func() bool {
		counts, _ := store.GetQueryTypeCounts("", "")
		return counts["general"] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSnapshot_RepetitionSummary(t *testing.T) {
	empty := &QueryMetricsSnapshot{}
	assert.Equal(t, "no queries recorded", empty.RepetitionSummary())

	snap := &QueryMetricsSnapshot{
		TotalQueries:     10,
		ExactRepeatRate:  0.2,
		SimilarQueryRate: 0.1,
		UniqueQueryCount: 8,
	}
	assert.Equal(t, "exact=20.0%, similar=10.0%, unique=8", snap.RepetitionSummary())
}
