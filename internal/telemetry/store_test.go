package telemetry

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStoreDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func newTestStore(t *testing.T) *SQLiteMetricsStore {
	t.Helper()
	store, err := NewSQLiteMetricsStore(newTestStoreDB(t))
	require.NoError(t, err)
	return store
}

func TestNewSQLiteMetricsStore_RequiresDB(t *testing.T) {
	_, err := NewSQLiteMetricsStore(nil)
	assert.Error(t, err)
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := newTestStoreDB(t)
	assert.NoError(t, InitSchema(db))
}

func TestSQLiteMetricsStore_QueryTypeCounts(t *testing.T) {
	store := newTestStore(t)

	counts := map[string]int64{
		"general":       10,
		"code":          5,
		"documentation": 3,
	}
	require.NoError(t, store.SaveQueryTypeCounts("2026-08-20", counts))

	result, err := store.GetQueryTypeCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(10), result["general"])
	assert.Equal(t, int64(5), result["code"])
	assert.Equal(t, int64(3), result["documentation"])
}

func TestSQLiteMetricsStore_QueryTypeCounts_Additive(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveQueryTypeCounts("2026-08-20", map[string]int64{"general": 10}))
	require.NoError(t, store.SaveQueryTypeCounts("2026-08-20", map[string]int64{"general": 5}))

	result, err := store.GetQueryTypeCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, int64(15), result["general"])
}

func TestSQLiteMetricsStore_QueryTypeCounts_DateRange(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveQueryTypeCounts("2026-08-18", map[string]int64{"general": 10}))
	require.NoError(t, store.SaveQueryTypeCounts("2026-08-19", map[string]int64{"general": 20}))
	require.NoError(t, store.SaveQueryTypeCounts("2026-08-20", map[string]int64{"general": 30}))

	result, err := store.GetQueryTypeCounts("2026-08-18", "2026-08-19")
	require.NoError(t, err)
	assert.Equal(t, int64(30), result["general"])
}

func TestSQLiteMetricsStore_TermCounts(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{
		"config":  10,
		"weights": 5,
		"fusion":  3,
	}))

	result, err := store.GetTopTerms(10)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, TermCount{Term: "config", Count: 10}, result[0])
	assert.Equal(t, TermCount{Term: "weights", Count: 5}, result[1])
}

func TestSQLiteMetricsStore_TermCounts_Additive(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{"config": 10}))
	require.NoError(t, store.UpsertTermCounts(map[string]int64{"config": 5}))

	result, err := store.GetTopTerms(1)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, int64(15), result[0].Count)
}

func TestSQLiteMetricsStore_TermCounts_EmptyNoOp(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.UpsertTermCounts(nil))
	assert.NoError(t, store.UpsertTermCounts(map[string]int64{}))
}

func TestSQLiteMetricsStore_GetTopTerms_Limit(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	}))

	result, err := store.GetTopTerms(3)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, "five", result[0].Term)
	assert.Equal(t, "four", result[1].Term)
	assert.Equal(t, "three", result[2].Term)
}

func TestSQLiteMetricsStore_ZeroResultQueries(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.AddZeroResultQuery("missing note", now))
	require.NoError(t, store.AddZeroResultQuery("unknown tag", now.Add(time.Minute)))

	result, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)

	// Newest first
	assert.Equal(t, []string{"unknown tag", "missing note"}, result)
}

func TestSQLiteMetricsStore_ZeroResultQueries_TrimsHistory(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	for i := 0; i < zeroResultHistoryLimit+5; i++ {
		q := fmt.Sprintf("query %d", i)
		require.NoError(t, store.AddZeroResultQuery(q, now.Add(time.Duration(i)*time.Second)))
	}

	result, err := store.GetZeroResultQueries(zeroResultHistoryLimit * 2)
	require.NoError(t, err)

	assert.Len(t, result, zeroResultHistoryLimit)
	// The oldest five were trimmed
	assert.Equal(t, fmt.Sprintf("query %d", zeroResultHistoryLimit+4), result[0])
	assert.Equal(t, "query 5", result[len(result)-1])
}

func TestSQLiteMetricsStore_LatencyCounts(t *testing.T) {
	store := newTestStore(t)

	counts := map[LatencyBucket]int64{
		BucketUnder10:  100,
		Bucket10to50:   50,
		Bucket50to100:  25,
		Bucket100to500: 10,
		BucketOver500:  5,
	}
	require.NoError(t, store.SaveLatencyCounts("2026-08-20", counts))

	result, err := store.GetLatencyCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, counts, result)
}

func TestSQLiteMetricsStore_LatencyCounts_Additive(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveLatencyCounts("2026-08-20", map[LatencyBucket]int64{BucketUnder10: 10}))
	require.NoError(t, store.SaveLatencyCounts("2026-08-20", map[LatencyBucket]int64{BucketUnder10: 5}))

	result, err := store.GetLatencyCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, int64(15), result[BucketUnder10])
}

func TestQueryMetrics_FlushRoundTripThroughSQLite(t *testing.T) {
	store := newTestStore(t)

	cfg := DefaultQueryMetricsConfig()
	cfg.FlushInterval = 0
	m := NewQueryMetricsWithConfig(store, cfg)

	m.Record(QueryEvent{
		Query:       "vault search weights",
		QueryType:   "general",
		ResultCount: 3,
		Latency:     12 * time.Millisecond,
		Timestamp:   time.Now(),
	})
	m.Record(QueryEvent{
		Query:       "nothing matches this",
		QueryType:   "documentation",
		ResultCount: 0,
		Latency:     80 * time.Millisecond,
		Timestamp:   time.Now(),
	})

	require.NoError(t, m.Close())

	today := time.Now().Format("2006-01-02")
	types, err := store.GetQueryTypeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), types["general"])
	assert.Equal(t, int64(1), types["documentation"])

	terms, err := store.GetTopTerms(10)
	require.NoError(t, err)
	assert.NotEmpty(t, terms)

	zero, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"nothing matches this"}, zero)

	lat, err := store.GetLatencyCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lat[Bucket10to50])
	assert.Equal(t, int64(1), lat[Bucket50to100])
}
