package telemetry

import (
	"database/sql"
	"fmt"
	"time"
)

// zeroResultHistoryLimit caps the persisted zero-result query history.
const zeroResultHistoryLimit = 100

// Telemetry DDL, executed by InitSchema. Each entry is one statement so
// a failure can be attributed to the table it was creating.
var telemetrySchema = []string{
	`CREATE TABLE IF NOT EXISTS query_type_stats (
		date TEXT NOT NULL, query_type TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, query_type))`,

	`CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY, count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`,
	`CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC)`,

	`CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT, query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`,

	`CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL, bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket))`,
}

// SQLiteMetricsStore persists query metrics in SQLite. It borrows the
// metadata store's connection so telemetry rides the same single
// writer instead of opening a second one.
type SQLiteMetricsStore struct {
	db *sql.DB
}

var _ QueryMetricsStore = (*SQLiteMetricsStore)(nil)

// NewSQLiteMetricsStore wraps an open database. The telemetry tables
// must exist; call InitSchema first.
func NewSQLiteMetricsStore(db *sql.DB) (*SQLiteMetricsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// InitSchema creates the telemetry tables if they do not exist. The
// CLI calls this right after the metadata store opens.
func InitSchema(db *sql.DB) error {
	for _, stmt := range telemetrySchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create telemetry schema: %w", err)
		}
	}
	return nil
}

// execBatch runs the same statement for every argument tuple inside one
// transaction. All the daily-aggregate writers funnel through here.
func (s *SQLiteMetricsStore) execBatch(query string, tuples [][]any) error {
	if len(tuples) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, args := range tuples {
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("exec batch statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// selectRows runs a query and invokes scan once per row, closing the
// rows on the way out. The readers below all go through here.
func (s *SQLiteMetricsStore) selectRows(what, query string, scan func(*sql.Rows) error, args ...any) error {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", what, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
	}
	return rows.Err()
}

// SaveQueryTypeCounts adds daily query type counts.
func (s *SQLiteMetricsStore) SaveQueryTypeCounts(date string, counts map[string]int64) error {
	tuples := make([][]any, 0, len(counts))
	for qt, n := range counts {
		tuples = append(tuples, []any{date, qt, n})
	}
	return s.execBatch(
		`INSERT INTO query_type_stats (date, query_type, count) VALUES (?, ?, ?)
		 ON CONFLICT(date, query_type) DO UPDATE SET count = count + excluded.count`,
		tuples)
}

// GetQueryTypeCounts sums counts over an inclusive date range.
func (s *SQLiteMetricsStore) GetQueryTypeCounts(from, to string) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := s.selectRows("type counts",
		`SELECT query_type, SUM(count) FROM query_type_stats
		 WHERE date BETWEEN ? AND ? GROUP BY query_type`,
		func(rows *sql.Rows) error {
			var qt string
			var n int64
			if err := rows.Scan(&qt, &n); err != nil {
				return err
			}
			counts[qt] = n
			return nil
		}, from, to)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// UpsertTermCounts adds term frequency counts.
func (s *SQLiteMetricsStore) UpsertTermCounts(terms map[string]int64) error {
	tuples := make([][]any, 0, len(terms))
	for term, n := range terms {
		tuples = append(tuples, []any{term, n})
	}
	return s.execBatch(
		`INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = CURRENT_TIMESTAMP`,
		tuples)
}

// GetTopTerms returns the most frequent terms.
func (s *SQLiteMetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	var terms []TermCount
	err := s.selectRows("top terms",
		`SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`,
		func(rows *sql.Rows) error {
			var tc TermCount
			if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
				return err
			}
			terms = append(terms, tc)
			return nil
		}, limit)
	if err != nil {
		return nil, err
	}
	return terms, nil
}

// AddZeroResultQuery appends a zero-result query and trims the history
// to its cap, oldest first.
func (s *SQLiteMetricsStore) AddZeroResultQuery(query string, timestamp time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
		query, timestamp)
	if err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}

	_, err = s.db.Exec(
		`DELETE FROM zero_result_queries WHERE id NOT IN
		 (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`,
		zeroResultHistoryLimit)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// GetZeroResultQueries returns recent zero-result queries, newest
// first.
func (s *SQLiteMetricsStore) GetZeroResultQueries(limit int) ([]string, error) {
	var queries []string
	err := s.selectRows("zero-result queries",
		`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`,
		func(rows *sql.Rows) error {
			var q string
			if err := rows.Scan(&q); err != nil {
				return err
			}
			queries = append(queries, q)
			return nil
		}, limit)
	if err != nil {
		return nil, err
	}
	return queries, nil
}

// SaveLatencyCounts adds daily latency histogram counts.
func (s *SQLiteMetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	tuples := make([][]any, 0, len(counts))
	for bucket, n := range counts {
		tuples = append(tuples, []any{date, string(bucket), n})
	}
	return s.execBatch(
		`INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, ?)
		 ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`,
		tuples)
}

// GetLatencyCounts sums the latency histogram over a date range.
func (s *SQLiteMetricsStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	counts := make(map[LatencyBucket]int64)
	err := s.selectRows("latency counts",
		`SELECT bucket, SUM(count) FROM query_latency_stats
		 WHERE date BETWEEN ? AND ? GROUP BY bucket`,
		func(rows *sql.Rows) error {
			var bucket string
			var n int64
			if err := rows.Scan(&bucket, &n); err != nil {
				return err
			}
			counts[LatencyBucket(bucket)] = n
			return nil
		}, from, to)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Close is a no-op; the database belongs to the metadata store.
func (s *SQLiteMetricsStore) Close() error {
	return nil
}
