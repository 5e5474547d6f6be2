package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// FTSIndex implements LexicalIndex on SQLite FTS5. Each channel (path,
// short, title, body) is a separate FTS column so one MATCH query yields
// per-channel BM25 scores. WAL mode allows concurrent readers while the
// daemon writes.
type FTSIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    LexicalConfig
	closed    bool
	stopWords map[string]struct{}
}

var _ LexicalIndex = (*FTSIndex)(nil)

// validateFTSIntegrity checks a SQLite FTS index before opening. Returns
// nil when the file is absent or healthy.
func validateFTSIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
	                   WHERE type='table' AND name='fts_chunks'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_chunks' missing")
	}

	return nil
}

// NewFTSIndex creates or opens a SQLite FTS5 lexical index. An empty path
// creates an in-memory index for testing. A corrupted index file is
// cleared and recreated; the caller sees a warning and an empty index.
func NewFTSIndex(path string, config LexicalConfig) (*FTSIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}

		if validErr := validateFTSIntegrity(path); validErr != nil {
			slog.Warn("lexical index corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}

		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer connection prevents SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	idx := &FTSIndex{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return idx, nil
}

func (s *FTSIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- chunk_id is UNINDEXED: stored for retrieval, never matched.
	-- Channel texts are pre-tokenized (camelCase/snake_case split).
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		chunk_id UNINDEXED,
		path,
		short,
		title,
		body,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// channelText pre-tokenizes one channel for indexing.
func (s *FTSIndex) channelText(text string) string {
	tokens := Tokenize(text, s.config.MinTokenLength)
	tokens = FilterStopWords(tokens, s.stopWords)
	return strings.Join(tokens, " ")
}

// Index adds records to the index. Existing chunk ids are replaced; FTS5
// virtual tables have no upsert, so replace is delete + insert.
func (s *FTSIndex) Index(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx,
		`DELETE FROM fts_chunks WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_chunks(chunk_id, path, short, title, body) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insertStmt.Close()

	for _, rec := range recs {
		if _, err := deleteStmt.ExecContext(ctx, rec.ChunkID); err != nil {
			return fmt.Errorf("delete existing chunk %s: %w", rec.ChunkID, err)
		}
		_, err := insertStmt.ExecContext(ctx,
			rec.ChunkID,
			s.channelText(rec.Path),
			s.channelText(rec.Short),
			s.channelText(rec.Title),
			s.channelText(rec.Body),
		)
		if err != nil {
			return fmt.Errorf("index chunk %s: %w", rec.ChunkID, err)
		}
	}

	return tx.Commit()
}

// Search returns the best matching chunks with per-channel scores
// normalized to [0, 1] against the best score of the page. Query terms
// combine with OR so synonym-expanded queries still match.
func (s *FTSIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalHit{}, nil
	}

	tokens := Tokenize(queryStr, s.config.MinTokenLength)
	tokens = FilterStopWords(tokens, s.stopWords)
	if len(tokens) == 0 {
		return []*LexicalHit{}, nil
	}

	matchQuery := strings.Join(tokens, " OR ")

	// bm25() takes one weight per table column, chunk_id included. Zeroing
	// all but one column isolates that channel's contribution. FTS5 scores
	// are negative (lower is better), so they are negated after scanning.
	query := `
		SELECT chunk_id,
		       bm25(fts_chunks, 0, 1, 0, 0, 0) AS path_score,
		       bm25(fts_chunks, 0, 0, 1, 0, 0) AS short_score,
		       bm25(fts_chunks, 0, 0, 0, 1, 0) AS title_score,
		       bm25(fts_chunks, 0, 0, 0, 0, 1) AS body_score
		FROM fts_chunks
		WHERE fts_chunks MATCH ?
		ORDER BY bm25(fts_chunks)
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, matchQuery, limit)
	if err != nil {
		// FTS5 reports malformed match expressions as errors; treat those
		// as no results rather than failing the search.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*LexicalHit{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var hits []*LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.ChunkID, &h.Path, &h.Short, &h.Title, &h.Body); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		h.Path, h.Short, h.Title, h.Body = -h.Path, -h.Short, -h.Title, -h.Body
		h.MatchedTerms = tokens
		hits = append(hits, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	normalizeChannels(hits)
	return hits, nil
}

// normalizeChannels scales each channel to [0, 1] by its page maximum. A
// channel nothing matched stays all zero.
func normalizeChannels(hits []*LexicalHit) {
	var maxPath, maxShort, maxTitle, maxBody float64
	for _, h := range hits {
		maxPath = max(maxPath, h.Path)
		maxShort = max(maxShort, h.Short)
		maxTitle = max(maxTitle, h.Title)
		maxBody = max(maxBody, h.Body)
	}
	for _, h := range hits {
		if maxPath > 0 {
			h.Path /= maxPath
		}
		if maxShort > 0 {
			h.Short /= maxShort
		}
		if maxTitle > 0 {
			h.Title /= maxTitle
		}
		if maxBody > 0 {
			h.Body /= maxBody
		}
	}
}

// Delete removes chunks from the index.
func (s *FTSIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM fts_chunks WHERE chunk_id IN (%s)",
		strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	return tx.Commit()
}

// AllIDs returns every chunk id present in the index.
func (s *FTSIndex) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id FROM fts_chunks")
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns index statistics.
func (s *FTSIndex) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &IndexStats{Backend: string(BackendSQLite)}
	if s.closed {
		return stats
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fts_chunks`).Scan(&count); err != nil {
		return stats
	}
	stats.Documents = count
	return stats
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *FTSIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
