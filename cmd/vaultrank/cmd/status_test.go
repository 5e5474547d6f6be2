package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/store"
)

// chdirTemp switches into a fresh temp directory for the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(prev) })
	require.NoError(t, os.Chdir(dir))
	return dir
}

func TestStatusCmd_NoIndex(t *testing.T) {
	chdirTemp(t)

	_, err := execRoot(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestStatusCmd_WithIndex(t *testing.T) {
	setupIngestedVault(t, map[string]string{
		"ideas.md": "# Ideas\n\nBuild a birdhouse with a camera inside.\n",
	})

	out, err := execRoot(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1", "report should include the note count")
}

func TestStatusCmd_JSON(t *testing.T) {
	setupIngestedVault(t, map[string]string{
		"ideas.md": "# Ideas\n\nPlant tomatoes on the balcony.\n",
	})

	out, err := execRoot(t, "status", "--json")
	require.NoError(t, err)
	for _, field := range []string{`"notes"`, `"chunks"`, `"backend"`} {
		assert.Contains(t, out, field)
	}
}

func TestCollectStatus_WithVault(t *testing.T) {
	setupIngestedVault(t, map[string]string{
		"journal/today.md": "# Today\n\nWrote tests, walked the dog.\n",
	})

	env, err := resolveVault(".")
	require.NoError(t, err)

	info, err := collectStatus(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, 1, info.Notes)
	assert.GreaterOrEqual(t, info.Chunks, 1)
	assert.NotZero(t, info.MetadataSize)
	assert.Equal(t, "sqlite", info.Backend)
	assert.False(t, info.LastIngested.IsZero(), "last ingest time should be set")
}

func TestCollectStatus_EmptyMetadata(t *testing.T) {
	// A data dir whose metadata store has never seen an ingest.
	root := t.TempDir()
	dataDir := filepath.Join(root, ".vaultrank")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	meta, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	require.NoError(t, err)
	require.NoError(t, meta.Close())

	env := vaultEnv{root: root, dataDir: dataDir, cfg: config.NewConfig()}
	info, err := collectStatus(context.Background(), env)
	require.NoError(t, err)

	assert.Zero(t, info.Notes)
	assert.Zero(t, info.Chunks)
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	assert.Equal(t, int64(len("hello world")), fileSize(path))
	assert.Zero(t, fileSize(filepath.Join(dir, "missing.txt")))
}

func TestPathSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bb"), 0o644))

	assert.Equal(t, int64(6), pathSize(dir), "directory size sums its files")
	assert.Zero(t, pathSize(filepath.Join(dir, "missing")))
}
