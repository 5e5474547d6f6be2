package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrank/vaultrank/internal/embed"
)

// isolateDaemon points the daemon socket and pid file at paths inside a
// temp dir so a daemon running on the machine never serves these tests.
func isolateDaemon(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VAULTRANK_DAEMON_SOCKET", filepath.Join(dir, "daemon.sock"))
	t.Setenv("VAULTRANK_DAEMON_PID", filepath.Join(dir, "daemon.pid"))
}

// setupIngestedVault creates a vault with the given notes, switches the
// working directory into it, and runs a full ingest with the static
// embedder. The working directory is restored when the test ends.
func setupIngestedVault(t *testing.T, notes map[string]string) string {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range notes {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })

	// Static embeddings keep the test hermetic; no Ollama needed. The
	// daemon socket moves into the temp dir so a daemon on the machine
	// never serves these searches.
	t.Setenv(embed.EnvEmbedder, "static")
	isolateDaemon(t)

	out, err := execRoot(t, "ingest", "--plain")
	require.NoError(t, err, "ingest should succeed: %s", out)

	return tmpDir
}

func TestSearchCmd_RequiresIndex(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	_, err := execRoot(t, "search", "test query")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, err := execRoot(t, "search")
	require.Error(t, err)
}

func TestSearchCmd_RejectsUnknownFormat(t *testing.T) {
	// A bogus --format fails validation before any index access.
	_, err := execRoot(t, "search", "anything", "--format", "xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestSearchCmd_WithIndex_ReturnsResults(t *testing.T) {
	setupIngestedVault(t, map[string]string{
		"Weekly Review.md": "# Weekly Review\n\nChecklist for the weekly review: inbox zero, calendar sweep.\n",
	})

	out, err := execRoot(t, "search", "checklist", "--lexical-only")

	require.NoError(t, err)
	assert.Contains(t, out, "Weekly Review.md")
}

func TestSearchCmd_FormatJSON_ValidJSON(t *testing.T) {
	setupIngestedVault(t, map[string]string{
		"projects/launch.md": "# Launch Plan\n\nShip the beta before the conference deadline.\n",
	})

	out, err := execRoot(t, "search", "deadline", "--format", "json", "--lexical-only")

	require.NoError(t, err)
	assert.Contains(t, out, "{", "Should contain JSON structure")
	assert.Contains(t, out, "launch.md")
}

func TestSearchCmd_NoResults_ShowsMessage(t *testing.T) {
	setupIngestedVault(t, map[string]string{
		"note.md": "# Groceries\n\nMilk, eggs, bread.\n",
	})

	out, err := execRoot(t, "search", "nonexistent_xyz_123", "--lexical-only")

	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestSearchCmd_Flags(t *testing.T) {
	tests := []struct {
		flag       string
		defaultVal string
	}{
		{"limit", "0"}, // 0 defers to the config value
		{"format", "text"},
		{"lexical-only", "false"},
	}

	root := NewRootCmd()
	searchCmd, _, _ := root.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f := searchCmd.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "missing --%s flag", tt.flag)
			assert.Equal(t, tt.defaultVal, f.DefValue)
		})
	}
}
