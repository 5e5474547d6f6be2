package searcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/ingest"
	"github.com/vaultrank/vaultrank/internal/search"
)

// testConfig pins static embeddings at small dimensions so tests never
// touch a model server.
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	return cfg
}

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOpen_UnindexedVault(t *testing.T) {
	root := t.TempDir()

	v, err := Open(context.Background(), root, Options{Config: testConfig()})
	require.NoError(t, err)
	defer func() { _ = v.Close() }()

	assert.Equal(t, root, v.Root())
	assert.Equal(t, filepath.Join(root, ".vaultrank"), v.DataDir())
	assert.NotNil(t, v.Engine())
	assert.NotNil(t, v.Meta())
	assert.NotNil(t, v.Lexical())
	assert.NotNil(t, v.Vector())
	assert.NotNil(t, v.Weights())
	assert.NotNil(t, v.Metrics())
	assert.Equal(t, 64, v.Embedder().Dimensions())

	resp, err := v.Search(context.Background(), "anything", search.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	// The miss still lands in telemetry.
	snap := v.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
}

func TestOpen_RequireIndex(t *testing.T) {
	root := t.TempDir()

	_, err := Open(context.Background(), root, Options{
		Config:       testConfig(),
		RequireIndex: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotIndexed)
	assert.Contains(t, err.Error(), "no index found")
}

func TestOpen_IngestSearch_RoundTrip(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "projects/deploy.md", "# Deploy checklist\n\nPin the runtime version before rolling out.\n")
	writeNote(t, root, "journal/2024-01-02.md", "# Tuesday\n\nDebugged the flaky staging pipeline all morning.\n")

	v, err := Open(context.Background(), root, Options{Config: testConfig()})
	require.NoError(t, err)

	report, err := v.Ingest(context.Background(), ingest.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesIndexed)
	assert.Positive(t, report.ChunksIndexed)

	resp, err := v.Search(context.Background(), "deploy checklist", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "projects/deploy.md", resp.Results[0].Path)

	require.NoError(t, v.Close())

	// The index persists across Open calls.
	reopened, err := Open(context.Background(), root, Options{
		Config:       testConfig(),
		RequireIndex: true,
	})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	resp, err = reopened.Search(context.Background(), "staging pipeline", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "journal/2024-01-02.md", resp.Results[0].Path)
}

func TestOpen_InjectedEmbedder(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "note.md", "# Note\n\nShared embedder path.\n")

	v, err := Open(context.Background(), root, Options{
		Config:   testConfig(),
		Embedder: embed.NewStaticEmbedderWithDimensions(64),
	})
	require.NoError(t, err)

	_, err = v.Ingest(context.Background(), ingest.RunOptions{})
	require.NoError(t, err)
	require.NoError(t, v.Close())

	// An injected embedder at the wrong dimensions must not open the
	// vault; the index cannot serve its query vectors.
	_, err = Open(context.Background(), root, Options{
		Config:   testConfig(),
		Embedder: embed.NewStaticEmbedderWithDimensions(32),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestIndexed(t *testing.T) {
	dataDir := t.TempDir()
	assert.False(t, Indexed(dataDir))

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "metadata.db"), []byte{}, 0o644))
	assert.True(t, Indexed(dataDir))
}

func TestVault_Close_Nil(t *testing.T) {
	var v *Vault
	assert.NoError(t, v.Close())
}
