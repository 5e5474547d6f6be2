package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBleve(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("", DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_IndexAndSearch_Basic(t *testing.T) {
	idx := newTestBleve(t)

	recs := []*Record{
		ftsRecord("aaaaaaaaaaaaaaa1", "notes/users.md", "", "User management", "how we manage user accounts"),
		ftsRecord("aaaaaaaaaaaaaaa2", "notes/billing.md", "", "Billing", "invoices and payment processing"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "user", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "aaaaaaaaaaaaaaa1", hits[0].ChunkID)
}

func TestBleveIndex_Search_PerChannelScores(t *testing.T) {
	idx := newTestBleve(t)

	recs := []*Record{
		ftsRecord("bbbbbbbbbbbbbbb1", "notes/misc.md", "", "reranker design", "unrelated text"),
		ftsRecord("bbbbbbbbbbbbbbb2", "notes/other.md", "", "something else", "the reranker walks the pool"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "reranker", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	byID := map[string]*LexicalHit{}
	for _, h := range hits {
		byID[h.ChunkID] = h
	}

	require.NotNil(t, byID["bbbbbbbbbbbbbbb1"])
	assert.Greater(t, byID["bbbbbbbbbbbbbbb1"].Title, 0.0)
	assert.Equal(t, 0.0, byID["bbbbbbbbbbbbbbb1"].Body)

	require.NotNil(t, byID["bbbbbbbbbbbbbbb2"])
	assert.Greater(t, byID["bbbbbbbbbbbbbbb2"].Body, 0.0)
	assert.Equal(t, 0.0, byID["bbbbbbbbbbbbbbb2"].Title)
}

func TestBleveIndex_Search_FindsCamelCase(t *testing.T) {
	idx := newTestBleve(t)

	recs := []*Record{
		ftsRecord("ccccccccccccccc1", "snippets/config.go", "", "", "func getUserConfig() error"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	hits, err := idx.Search(context.Background(), "user", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].MatchedTerms, "user")
}

func TestBleveIndex_Search_EmptyQuery(t *testing.T) {
	idx := newTestBleve(t)

	hits, err := idx.Search(context.Background(), "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestBleve(t)

	recs := []*Record{
		ftsRecord("ddddddddddddddd1", "a.md", "", "", "first chunk"),
		ftsRecord("ddddddddddddddd2", "b.md", "", "", "second chunk"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	require.NoError(t, idx.Delete(context.Background(), []string{"ddddddddddddddd1"}))

	hits, err := idx.Search(context.Background(), "first", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 1, idx.Stats().Documents)
}

func TestBleveIndex_AllIDs(t *testing.T) {
	idx := newTestBleve(t)

	ids, err := idx.AllIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	recs := []*Record{
		ftsRecord("eeeeeeeeeeeeeee1", "a.md", "", "", "first chunk"),
		ftsRecord("eeeeeeeeeeeeeee2", "b.md", "", "", "second chunk"),
	}
	require.NoError(t, idx.Index(context.Background(), recs))

	ids, err = idx.AllIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"eeeeeeeeeeeeeee1", "eeeeeeeeeeeeeee2"}, ids)
}

func TestBleveIndex_Stats_ReportsBackend(t *testing.T) {
	idx := newTestBleve(t)

	stats := idx.Stats()
	assert.Equal(t, "bleve", stats.Backend)
	assert.Equal(t, 0, stats.Documents)
}

func TestBleveIndex_Close_Idempotent(t *testing.T) {
	idx, err := NewBleveIndex("", DefaultLexicalConfig())
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "anything", 10)
	assert.Error(t, err)
}
