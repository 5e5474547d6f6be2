// Package integration exercises whole flows across packages: ingest
// into real stores, search over them, snapshot and restore, and the
// watch-reindex loop. Component behavior belongs in the package tests;
// these verify the seams.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/ingest"
	"github.com/vaultrank/vaultrank/internal/search"
	"github.com/vaultrank/vaultrank/internal/snapshot"
	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/pkg/searcher"
)

// testConfig pins static embeddings at small dimensions so no test
// needs a model server.
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	return cfg
}

// seedVault writes a small personal vault with terms the tests query
// for. "rollout" deliberately appears under two folders for the scope
// filter test.
func seedVault(t *testing.T, root string) {
	t.Helper()
	notes := map[string]string{
		"projects/homelab.md":     "# Homelab\n\nMigrate the reverse proxy to Caddy and document the TLS setup.\n",
		"projects/deploy.md":      "# Deploy checklist\n\nWrite the rollout plan and snapshot the database first.\n",
		"journal/2026-03-14.md":   "# Friday\n\nThe staging rollout went fine. Spent the evening tuning the\nespresso grinder; eighteen grams in, thirty-six out.\n",
		"reference/kubernetes.md": "# Kubernetes notes\n\nkubectl drain cordons the node before evicting pods.\n",
	}
	for rel, content := range notes {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// openVault opens the search stack over root with the test config.
func openVault(t *testing.T, root string) *searcher.Vault {
	t.Helper()
	v, err := searcher.Open(context.Background(), root, searcher.Options{Config: testConfig()})
	require.NoError(t, err)
	return v
}

func resultPaths(resp *search.Response) []string {
	paths := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		paths = append(paths, r.Path)
	}
	return paths
}

func TestVaultFlow_IngestThenSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Given: a seeded vault, ingested from scratch
	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	defer func() { _ = v.Close() }()

	ctx := context.Background()
	report, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.FilesIndexed)
	assert.Positive(t, report.ChunksIndexed)
	assert.Zero(t, report.FilesFailed)

	// When: searching for content from one note
	resp, err := v.Search(ctx, "espresso grinder", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)

	// Then: the journal note that mentions it ranks first
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "journal/2026-03-14.md", resp.Results[0].Path)
	assert.Positive(t, resp.Results[0].FinalScore)

	// And: a bare filename query lands on that note, classified short
	resp, err = v.Search(ctx, "kubernetes", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "reference/kubernetes.md", resp.Results[0].Path)
	assert.Equal(t, search.QueryTypeShortNumeric, resp.QueryType)
}

func TestVaultFlow_HybridSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	defer func() { _ = v.Close() }()

	ctx := context.Background()
	_, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	// Both retrieval channels run; the lexical exact match must survive
	// fusion with the vector channel.
	resp, err := v.Search(ctx, "reverse proxy TLS", search.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resultPaths(resp), "projects/homelab.md")

	for _, r := range resp.Results {
		assert.NotEmpty(t, r.ChunkID)
		assert.NotEmpty(t, r.Content)
	}
}

func TestVaultFlow_EditedNoteReindexed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Given: an ingested vault
	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	defer func() { _ = v.Close() }()

	ctx := context.Background()
	_, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	// When: one note is rewritten and the vault re-ingested
	journal := filepath.Join(root, "journal", "2026-03-14.md")
	require.NoError(t, os.WriteFile(journal, []byte("# Friday\n\nSwitched the homelab backup to restic.\n"), 0o644))

	report, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	// Then: only the changed note is reprocessed
	assert.Equal(t, 1, report.FilesIndexed)
	assert.Equal(t, 3, report.FilesSkipped)

	// And: the new content is searchable, the old content gone
	resp, err := v.Search(ctx, "restic backup", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	assert.Contains(t, resultPaths(resp), "journal/2026-03-14.md")

	resp, err = v.Search(ctx, "espresso grinder", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	assert.NotContains(t, resultPaths(resp), "journal/2026-03-14.md")
}

func TestVaultFlow_DeletedNotePruned(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	defer func() { _ = v.Close() }()

	ctx := context.Background()
	_, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	// When: a note is deleted and the vault re-ingested
	require.NoError(t, os.Remove(filepath.Join(root, "reference", "kubernetes.md")))
	report, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	// Then: the document is pruned and stops matching
	assert.Equal(t, 1, report.DocsPruned)
	assert.Positive(t, report.ChunksDeleted)

	resp, err := v.Search(ctx, "kubectl drain", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	assert.NotContains(t, resultPaths(resp), "reference/kubernetes.md")
}

func TestVaultFlow_ScopeFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	defer func() { _ = v.Close() }()

	ctx := context.Background()
	_, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	// "rollout" lives in both projects/ and journal/.
	resp, err := v.Search(ctx, "rollout", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	paths := resultPaths(resp)
	assert.Contains(t, paths, "projects/deploy.md")
	assert.Contains(t, paths, "journal/2026-03-14.md")

	// A scope keeps only one folder.
	resp, err = v.Search(ctx, "rollout", search.SearchOptions{
		LexicalOnly: true,
		Scopes:      []string{"projects"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.True(t, filepath.Dir(r.Path) == "projects", "unexpected path %s", r.Path)
	}
}

func TestVaultFlow_ConcurrentSearches(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	defer func() { _ = v.Close() }()

	ctx := context.Background()
	_, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	queries := []string{"rollout plan", "espresso", "kubectl drain", "reverse proxy"}

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		query := queries[i%len(queries)]
		g.Go(func() error {
			resp, err := v.Search(ctx, query, search.SearchOptions{Limit: 5})
			if err != nil {
				return err
			}
			if len(resp.Results) == 0 {
				return fmt.Errorf("no results for %q", query)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestVaultFlow_SnapshotRestore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Given: an ingested vault with a snapshot of its clean state
	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	ctx := context.Background()
	_, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)
	require.NoError(t, v.Close())

	dataDir := filepath.Join(root, ".vaultrank")
	mgr := snapshot.NewManager(dataDir)
	_, err = mgr.Save("clean", root, snapshot.Stats{Documents: 4})
	require.NoError(t, err)

	// When: the index moves on past the snapshot
	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "scratch.md"), []byte("# Scratch\n\nQuetzal feathers for the costume.\n"), 0o644))

	v = openVault(t, root)
	_, err = v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	resp, err := v.Search(ctx, "quetzal feathers", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	assert.Contains(t, resultPaths(resp), "inbox/scratch.md")
	require.NoError(t, v.Close())

	// And: the snapshot is restored
	_, err = mgr.Restore("clean")
	require.NoError(t, err)

	// Then: the reopened stack serves the snapshot's state
	restored, err := searcher.Open(ctx, root, searcher.Options{
		Config:       testConfig(),
		RequireIndex: true,
	})
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	resp, err = restored.Search(ctx, "quetzal feathers", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	resp, err = restored.Search(ctx, "espresso grinder", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	assert.Contains(t, resultPaths(resp), "journal/2026-03-14.md")
}

func TestVaultFlow_DriftDetectionAndRepair(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Given: an ingested vault
	root := t.TempDir()
	seedVault(t, root)

	v := openVault(t, root)
	defer func() { _ = v.Close() }()

	ctx := context.Background()
	_, err := v.Ingest(ctx, ingest.RunOptions{})
	require.NoError(t, err)

	// When: a chunk record vanishes from metadata, as if an ingest died
	// between store writes
	resp, err := v.Search(ctx, "kubectl drain", search.SearchOptions{LexicalOnly: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	orphanID := resp.Results[0].ChunkID
	require.NoError(t, v.Meta().DeleteRecords(ctx, []string{orphanID}))

	// Then: the checker sees the orphan in both indices
	checker := store.NewConsistencyChecker(v.Meta(), v.Lexical(), v.Vector())
	report, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent())

	kinds := map[store.DriftKind]bool{}
	for _, d := range report.Drifts {
		if d.ChunkID == orphanID {
			kinds[d.Kind] = true
		}
	}
	assert.True(t, kinds[store.DriftOrphanLexical])
	assert.True(t, kinds[store.DriftOrphanVector])

	// And: repair removes the orphans and the stores agree again
	require.NoError(t, checker.Repair(ctx, report.Drifts))

	report, err = checker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())

	counts, err := checker.QuickCheck(ctx)
	require.NoError(t, err)
	assert.True(t, counts.Consistent())
}

func TestConfigFlow_Precedence(t *testing.T) {
	// Given: a vault config file and an environment override
	root := t.TempDir()
	vaultCfg := "version: 1\nsearch:\n  limit: 15\nembeddings:\n  provider: static\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".vaultrank.yaml"), []byte(vaultCfg), 0o644))
	t.Setenv("VAULTRANK_LIMIT", "5")

	// When: loading the layered configuration
	cfg, err := config.Load(root)
	require.NoError(t, err)

	// Then: the env var beats the file, the file beats the defaults
	assert.Equal(t, 5, cfg.Search.Limit)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, config.NewConfig().Search.RRFConstant, cfg.Search.RRFConstant)
}
