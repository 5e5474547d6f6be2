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
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/vaultrank/vaultrank/internal/chunk"
)

// metaBatchSize bounds IN-clause placeholder counts.
const metaBatchSize = 500

// SQLiteStore implements MetadataStore. One writer connection in WAL
// mode; readers from other processes stay unblocked.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

// validateMetaIntegrity checks an existing metadata database before
// opening it for writes.
func validateMetaIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open database: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='chunks'`).Scan(&name)
	if err == sql.ErrNoRows {
		return nil // empty database, schema created on open
	}
	if err != nil {
		return fmt.Errorf("cannot check table existence: %w", err)
	}
	return nil
}

// NewSQLiteStore creates or opens the metadata database at path. An
// empty path opens an in-memory database for testing. A corrupted
// database is cleared and recreated.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		if validErr := validateMetaIntegrity(path); validErr != nil {
			slog.Warn("metadata store corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			for _, suffix := range []string{"", "-wal", "-shm"} {
				os.Remove(path + suffix)
			}
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer connection. SQLite serializes writes anyway and a
	// second connection would just hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id       TEXT PRIMARY KEY,
		path         TEXT NOT NULL UNIQUE,
		content_hash TEXT NOT NULL,
		size         INTEGER NOT NULL DEFAULT 0,
		mod_time     TIMESTAMP NOT NULL,
		indexed_at   TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id     TEXT PRIMARY KEY,
		doc_id       TEXT NOT NULL,
		path         TEXT NOT NULL,
		short        TEXT NOT NULL DEFAULT '',
		title        TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		start_byte   INTEGER NOT NULL DEFAULT 0,
		end_byte     INTEGER NOT NULL DEFAULT 0,
		version      TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying connection so the telemetry store can share
// it instead of opening a second writer.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// SaveRecords upserts chunk records. Every chunk id is validated before
// any row is written; a malformed id rejects the whole batch.
func (s *SQLiteStore) SaveRecords(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	for _, rec := range recs {
		if err := chunk.ValidateChunkID(rec.ChunkID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, doc_id, path, short, title, body, content_type, start_byte, end_byte, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			doc_id = excluded.doc_id,
			path = excluded.path,
			short = excluded.short,
			title = excluded.title,
			body = excluded.body,
			content_type = excluded.content_type,
			start_byte = excluded.start_byte,
			end_byte = excluded.end_byte,
			version = excluded.version,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := rec.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		_, err := stmt.ExecContext(ctx,
			rec.ChunkID, rec.DocID, rec.Path, rec.Short, rec.Title, rec.Body,
			rec.ContentType, rec.StartByte, rec.EndByte, rec.Version,
			createdAt, updatedAt)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", rec.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetRecords fetches chunk records by id. Missing ids are skipped, not
// errors; result order is unspecified.
func (s *SQLiteStore) GetRecords(ctx context.Context, chunkIDs []string) ([]*Record, error) {
	if len(chunkIDs) == 0 {
		return []*Record{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	recs := make([]*Record, 0, len(chunkIDs))
	for start := 0; start < len(chunkIDs); start += metaBatchSize {
		end := min(start+metaBatchSize, len(chunkIDs))
		batch := chunkIDs[start:end]

		query := fmt.Sprintf(`
			SELECT chunk_id, doc_id, path, short, title, body, content_type, start_byte, end_byte, version, created_at, updated_at
			FROM chunks WHERE chunk_id IN (%s)
		`, sqlPlaceholders(len(batch)))

		rows, err := s.db.QueryContext(ctx, query, toAnySlice(batch)...)
		if err != nil {
			return nil, fmt.Errorf("query chunks: %w", err)
		}
		for rows.Next() {
			rec := &Record{}
			err := rows.Scan(&rec.ChunkID, &rec.DocID, &rec.Path, &rec.Short, &rec.Title,
				&rec.Body, &rec.ContentType, &rec.StartByte, &rec.EndByte, &rec.Version,
				&rec.CreatedAt, &rec.UpdatedAt)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan chunk: %w", err)
			}
			recs = append(recs, rec)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate chunks: %w", err)
		}
		rows.Close()
	}
	return recs, nil
}

// DeleteRecords removes chunk records by id.
func (s *SQLiteStore) DeleteRecords(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(chunkIDs); start += metaBatchSize {
		end := min(start+metaBatchSize, len(chunkIDs))
		batch := chunkIDs[start:end]

		query := fmt.Sprintf("DELETE FROM chunks WHERE chunk_id IN (%s)", sqlPlaceholders(len(batch)))
		if _, err := tx.ExecContext(ctx, query, toAnySlice(batch)...); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SaveDocument upserts a tracked document.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, path, content_hash, size, mod_time, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			path = excluded.path,
			content_hash = excluded.content_hash,
			size = excluded.size,
			mod_time = excluded.mod_time,
			indexed_at = excluded.indexed_at
	`, doc.DocID, doc.Path, doc.ContentHash, doc.Size, doc.ModTime, indexedAt)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.DocID, err)
	}
	return nil
}

// GetDocumentByPath returns the tracked document at a vault-relative
// path, or nil when the path has never been indexed.
func (s *SQLiteStore) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, path, content_hash, size, mod_time, indexed_at
		FROM documents WHERE path = ?
	`, path).Scan(&doc.DocID, &doc.Path, &doc.ContentHash, &doc.Size, &doc.ModTime, &doc.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document by path: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all tracked documents ordered by path.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, path, content_hash, size, mod_time, indexed_at
		FROM documents ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(&doc.DocID, &doc.Path, &doc.ContentHash, &doc.Size, &doc.ModTime, &doc.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListChunkIDs returns every chunk id known to the metadata store. The
// consistency checker treats this set as the source of truth when
// diffing against the lexical and vector indices.
func (s *SQLiteStore) ListChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id FROM chunks ORDER BY chunk_id")
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

// DeleteByDoc removes a document and all its chunks, returning the
// removed chunk ids so callers can clean the lexical and vector
// indices.
func (s *SQLiteStore) DeleteByDoc(ctx context.Context, docID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, "SELECT chunk_id FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return nil, fmt.Errorf("query doc chunks: %w", err)
	}
	chunkIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		chunkIDs = append(chunkIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate doc chunks: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID); err != nil {
		return nil, fmt.Errorf("delete doc chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", docID); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return chunkIDs, nil
}

// GetState returns a state value, or "" when the key is unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("metadata store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a state value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Stats returns document and chunk counts plus the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	stats := &StoreStats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil {
			stats.SizeBytes = info.Size()
		}
	}
	return stats, nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Debug("wal checkpoint failed", slog.String("error", err.Error()))
	}
	return s.db.Close()
}

// sqlPlaceholders returns "?, ?, ..." with n markers.
func sqlPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
