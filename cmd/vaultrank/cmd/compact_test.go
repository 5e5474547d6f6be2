package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrank/vaultrank/internal/store"
)

func TestCompactCmd_RejectsExtraArgs(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"compact", "one", "two"})

	// When: running with two positional arguments
	err := cmd.Execute()

	// Then: the command takes at most one path
	require.Error(t, err)
}

func TestRunCompact_NoIndex(t *testing.T) {
	// Given: a vault directory that was never ingested
	tmpDir := t.TempDir()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"compact", tmpDir})

	// When: compacting it
	err := cmd.Execute()

	// Then: it points at ingest
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestRunCompact_PathIsFile(t *testing.T) {
	// Given: a plain file instead of a vault directory
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "note.md")
	require.NoError(t, os.WriteFile(file, []byte("# note\n"), 0o644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"compact", file})

	// When: compacting the file
	err := cmd.Execute()

	// Then: the path check rejects it
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestRunCompact_NoVectorIndex(t *testing.T) {
	// Given: metadata exists but no vector index was ever written
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".vaultrank")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "metadata.db"), nil, 0o644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"compact", tmpDir})

	// When: compacting
	err := cmd.Execute()

	// Then: the missing vector index is reported
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vector index found")
}

func TestRunCompact_RemovesOrphans(t *testing.T) {
	// Given: a vector index with one lazily deleted vector
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".vaultrank")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "metadata.db"), nil, 0o644))

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vec, err := store.NewHNSWIndex(vectorPath, store.DefaultVectorConfig(4))
	require.NoError(t, err)

	ctx := context.Background()
	ids := []string{"aaaaaaaaaaaaaaa1", "aaaaaaaaaaaaaaa2", "aaaaaaaaaaaaaaa3"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	require.NoError(t, vec.Add(ctx, ids, vectors))
	require.NoError(t, vec.Delete(ctx, []string{"aaaaaaaaaaaaaaa2"}))
	require.NoError(t, vec.Close())

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"compact", tmpDir})

	// When: compacting
	require.NoError(t, cmd.Execute())

	// Then: the orphan is gone and the live vectors survive
	assert.Contains(t, buf.String(), "Removed 1 orphaned node(s)")

	reopened, err := store.NewHNSWIndex(vectorPath, store.DefaultVectorConfig(4))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	assert.Equal(t, 2, reopened.Count())
	assert.Equal(t, 0, reopened.Stats().Orphans)
}

func TestRunCompact_NothingToCompact(t *testing.T) {
	// Given: a vector index with no orphans
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".vaultrank")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "metadata.db"), nil, 0o644))

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vec, err := store.NewHNSWIndex(vectorPath, store.DefaultVectorConfig(4))
	require.NoError(t, err)
	require.NoError(t, vec.Add(context.Background(), []string{"aaaaaaaaaaaaaaa1"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, vec.Close())

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"compact", tmpDir})

	// When: compacting
	require.NoError(t, cmd.Execute())

	// Then: it reports a no-op
	assert.Contains(t, buf.String(), "nothing to compact")
}
