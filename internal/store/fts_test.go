package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFTS(t *testing.T) *FTSIndex {
	t.Helper()
	idx, err := NewFTSIndex("", DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func ftsRecord(id, path, short, title, body string) *Record {
	return &Record{
		ChunkID: id,
		Path:    path,
		Short:   short,
		Title:   title,
		Body:    body,
	}
}

func TestFTSIndex_IndexAndSearch_Basic(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{
		ftsRecord("aaaaaaaaaaaaaaa1", "notes/users.md", "", "User management", "how we manage user accounts"),
		ftsRecord("aaaaaaaaaaaaaaa2", "notes/billing.md", "", "Billing", "invoices and payment processing"),
		ftsRecord("aaaaaaaaaaaaaaa3", "snippets/user.go", "", "", "func createUser() {}"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "user", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	ids := []string{hits[0].ChunkID, hits[1].ChunkID}
	assert.Contains(t, ids, "aaaaaaaaaaaaaaa1")
	assert.Contains(t, ids, "aaaaaaaaaaaaaaa3")
}

func TestFTSIndex_Search_PerChannelScores(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{
		ftsRecord("bbbbbbbbbbbbbbb1", "notes/misc.md", "", "reranker design", "unrelated text"),
		ftsRecord("bbbbbbbbbbbbbbb2", "notes/other.md", "", "unrelated heading", "the reranker walks the pool"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "reranker", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	byID := map[string]*LexicalHit{}
	for _, h := range hits {
		byID[h.ChunkID] = h
	}

	titleHit := byID["bbbbbbbbbbbbbbb1"]
	require.NotNil(t, titleHit)
	assert.Greater(t, titleHit.Title, 0.0)
	assert.Equal(t, 0.0, titleHit.Body)

	bodyHit := byID["bbbbbbbbbbbbbbb2"]
	require.NotNil(t, bodyHit)
	assert.Greater(t, bodyHit.Body, 0.0)
	assert.Equal(t, 0.0, bodyHit.Title)
}

func TestFTSIndex_Search_NormalizesToPageMax(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{
		ftsRecord("ccccccccccccccc1", "a.md", "", "", "widget widget widget assembly"),
		ftsRecord("ccccccccccccccc2", "b.md", "", "", "one widget mention in a longer body of text"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "widget", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// The best body score on the page is scaled to exactly 1.
	best := max(hits[0].Body, hits[1].Body)
	assert.Equal(t, 1.0, best)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Body, 0.0)
		assert.LessOrEqual(t, h.Body, 1.0)
	}
}

func TestFTSIndex_Search_FindsCamelCase(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{
		ftsRecord("ddddddddddddddd1", "snippets/config.go", "", "", "func getUserConfig() error"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "user", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ddddddddddddddd1", hits[0].ChunkID)

	hits, err = idx.Search(context.Background(), "getUserConfig", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFTSIndex_Search_TermsCombineWithOr(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{
		ftsRecord("eeeeeeeeeeeeeee1", "a.md", "", "", "standup notes from monday"),
		ftsRecord("eeeeeeeeeeeeeee2", "b.md", "", "", "sync agenda for the platform team"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	// Synonym-expanded queries only work if one matching term is enough.
	hits, err := idx.Search(context.Background(), "standup sync", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestFTSIndex_Search_EmptyAndStopWordQueries(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{ftsRecord("fffffffffffffff1", "a.md", "", "", "some body text")}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(context.Background(), "the and of", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTSIndex_Search_PunctuationDoesNotBreakMatch(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{ftsRecord("ggggggggggggggg1", "a.md", "", "", "shutdown sequence for the daemon")}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), `what does "shutdown();" do?`, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].MatchedTerms, "shutdown")
}

func TestFTSIndex_Index_ReplacesExisting(t *testing.T) {
	idx := newTestFTS(t)

	rec := ftsRecord("hhhhhhhhhhhhhhh1", "a.md", "", "", "original wording")
	require.NoError(t, idx.Index(context.Background(), []*Record{rec}))

	rec.Body = "revised wording"
	require.NoError(t, idx.Index(context.Background(), []*Record{rec}))

	hits, err := idx.Search(context.Background(), "original", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(context.Background(), "revised", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	assert.Equal(t, 1, idx.Stats().Documents)
}

func TestFTSIndex_Delete(t *testing.T) {
	idx := newTestFTS(t)

	recs := []*Record{
		ftsRecord("iiiiiiiiiiiiiii1", "a.md", "", "", "first chunk"),
		ftsRecord("iiiiiiiiiiiiiii2", "b.md", "", "", "second chunk"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	require.NoError(t, idx.Delete(context.Background(), []string{"iiiiiiiiiiiiiii1"}))

	hits, err := idx.Search(context.Background(), "first", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 1, idx.Stats().Documents)

	// Deleting nothing is a no-op.
	require.NoError(t, idx.Delete(context.Background(), nil))
}

func TestFTSIndex_AllIDs(t *testing.T) {
	idx := newTestFTS(t)

	ids, err := idx.AllIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	recs := []*Record{
		ftsRecord("jjjjjjjjjjjjjjj1", "a.md", "", "", "first chunk"),
		ftsRecord("jjjjjjjjjjjjjjj2", "b.md", "", "", "second chunk"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	ids, err = idx.AllIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"jjjjjjjjjjjjjjj1", "jjjjjjjjjjjjjjj2"}, ids)

	require.NoError(t, idx.Delete(context.Background(), []string{"jjjjjjjjjjjjjjj1"}))

	ids, err = idx.AllIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"jjjjjjjjjjjjjjj2"}, ids)
}

func TestFTSIndex_Stats_ReportsBackend(t *testing.T) {
	idx := newTestFTS(t)

	stats := idx.Stats()
	assert.Equal(t, "sqlite", stats.Backend)
	assert.Equal(t, 0, stats.Documents)
}

func TestFTSIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.db")

	idx, err := NewFTSIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	recs := []*Record{ftsRecord("jjjjjjjjjjjjjjj1", "a.md", "", "", "durable content")}
	require.NoError(t, idx.Index(context.Background(), recs))
	require.NoError(t, idx.Close())

	reopened, err := NewFTSIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	hits, err := reopened.Search(context.Background(), "durable", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFTSIndex_CorruptedFileClearedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.db")
	require.NoError(t, os.WriteFile(path, []byte("not a sqlite database"), 0o644))

	idx, err := NewFTSIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	assert.Equal(t, 0, idx.Stats().Documents)
}

func TestFTSIndex_Close_Idempotent(t *testing.T) {
	idx, err := NewFTSIndex("", DefaultLexicalConfig())
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "anything", 10)
	assert.Error(t, err)

	err = idx.Index(context.Background(), []*Record{ftsRecord("kkkkkkkkkkkkkkk1", "a.md", "", "", "x")})
	assert.Error(t, err)
}
