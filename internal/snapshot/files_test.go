package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeIndex lays down index files with known contents so copies
// can be verified byte for byte.
func writeFakeIndex(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("data:"+name), 0o644))
	}
}

func TestCopyIndex_CopiesPresentFiles(t *testing.T) {
	// Given: a data directory with the sqlite-backed index
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "snap")
	writeFakeIndex(t, src, "metadata.db", "metadata.db-wal", "lexical.db", "vectors.hnsw", "vectors.hnsw.meta")

	// When: copying the index
	require.NoError(t, copyIndex(src, dst))

	// Then: every present file arrives, WAL sidecar included
	for _, name := range []string{"metadata.db", "metadata.db-wal", "lexical.db", "vectors.hnsw", "vectors.hnsw.meta"} {
		data, err := os.ReadFile(filepath.Join(dst, name))
		require.NoError(t, err, name)
		assert.Equal(t, "data:"+name, string(data))
	}
}

func TestCopyIndex_SkipsMissingFiles(t *testing.T) {
	// Given: a lexical-only index, no vectors on disk
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "snap")
	writeFakeIndex(t, src, "metadata.db", "lexical.db")

	// When: copying
	require.NoError(t, copyIndex(src, dst))

	// Then: only the present files are copied
	assert.FileExists(t, filepath.Join(dst, "metadata.db"))
	assert.FileExists(t, filepath.Join(dst, "lexical.db"))
	assert.NoFileExists(t, filepath.Join(dst, "vectors.hnsw"))
	assert.NoFileExists(t, filepath.Join(dst, "metadata.db-wal"))
}

func TestCopyIndex_CopiesBleveDirectory(t *testing.T) {
	// Given: a bleve lexical backend with nested store files
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "snap")
	writeFakeIndex(t, src, "metadata.db",
		filepath.Join("lexical.bleve", "index_meta.json"),
		filepath.Join("lexical.bleve", "store", "root.bolt"),
	)

	// When: copying
	require.NoError(t, copyIndex(src, dst))

	// Then: the directory tree is reproduced
	assert.FileExists(t, filepath.Join(dst, "lexical.bleve", "index_meta.json"))
	data, err := os.ReadFile(filepath.Join(dst, "lexical.bleve", "store", "root.bolt"))
	require.NoError(t, err)
	assert.Equal(t, "data:"+filepath.Join("lexical.bleve", "store", "root.bolt"), string(data))
}

func TestCopyIndex_MissingSource(t *testing.T) {
	err := copyIndex(filepath.Join(t.TempDir(), "absent"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source directory")
}

func TestCopyIndex_IgnoresUnrelatedFiles(t *testing.T) {
	// Given: a data directory with non-index files alongside the index
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "snap")
	writeFakeIndex(t, src, "metadata.db", "vault.log", ".preflight-passed")

	// When: copying
	require.NoError(t, copyIndex(src, dst))

	// Then: logs and markers stay behind
	assert.FileExists(t, filepath.Join(dst, "metadata.db"))
	assert.NoFileExists(t, filepath.Join(dst, "vault.log"))
	assert.NoFileExists(t, filepath.Join(dst, ".preflight-passed"))
}

func TestRemoveIndex_ClearsEverything(t *testing.T) {
	// Given: a live index with WAL and shared-memory sidecars
	dir := t.TempDir()
	writeFakeIndex(t, dir,
		"metadata.db", "metadata.db-wal", "metadata.db-shm",
		"lexical.db", "lexical.db-wal", "lexical.db-shm",
		"vectors.hnsw", "vectors.hnsw.meta",
		filepath.Join("lexical.bleve", "index_meta.json"),
		"vault.log",
	)

	// When: removing the index
	require.NoError(t, removeIndex(dir))

	// Then: every index file goes, -shm included, but not the log
	for _, name := range []string{
		"metadata.db", "metadata.db-wal", "metadata.db-shm",
		"lexical.db", "lexical.db-wal", "lexical.db-shm",
		"vectors.hnsw", "vectors.hnsw.meta",
	} {
		assert.NoFileExists(t, filepath.Join(dir, name), name)
	}
	assert.NoDirExists(t, filepath.Join(dir, "lexical.bleve"))
	assert.FileExists(t, filepath.Join(dir, "vault.log"))
}

func TestRemoveIndex_EmptyDirectory(t *testing.T) {
	// Removing from a directory with no index is a no-op.
	require.NoError(t, removeIndex(t.TempDir()))
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o644))

	assert.Equal(t, int64(150), dirSize(dir))
	assert.Zero(t, dirSize(filepath.Join(dir, "missing")))
}
