package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCmd_AddedToRoot(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// When: finding check command
	checkCmd, _, err := cmd.Find([]string{"check"})

	// Then: check command should exist
	require.NoError(t, err)
	assert.Equal(t, "check", checkCmd.Name())
}

func TestCheckCmd_HasFlags(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	checkCmd, _, err := cmd.Find([]string{"check"})
	require.NoError(t, err)

	// Then: the run flags should be registered with their defaults
	initFlag := checkCmd.Flags().Lookup("init")
	require.NotNil(t, initFlag, "should have --init flag")
	assert.Equal(t, "false", initFlag.DefValue)

	suiteFlag := checkCmd.Flags().Lookup("suite")
	require.NotNil(t, suiteFlag, "should have --suite flag")
	assert.Equal(t, "", suiteFlag.DefValue)

	limitFlag := checkCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag, "should have --limit flag")
	assert.Equal(t, "0", limitFlag.DefValue)

	jsonFlag := checkCmd.Flags().Lookup("json")
	require.NotNil(t, jsonFlag, "should have --json flag")

	offlineFlag := checkCmd.Flags().Lookup("offline")
	require.NotNil(t, offlineFlag, "should have --offline flag")
}

func TestCheckCmd_Init_WritesStarterSuite(t *testing.T) {
	// Given: a fresh vault with no index yet
	tmpDir := t.TempDir()

	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldWd) }()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", "--init"})

	// When: writing the starter suite
	err := cmd.Execute()

	// Then: the suite lands in the data directory
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Wrote starter check suite")

	suitePath := filepath.Join(tmpDir, ".vaultrank", "checks.yaml")
	data, err := os.ReadFile(suitePath)
	require.NoError(t, err, "starter suite should be written")
	assert.Contains(t, string(data), "smoke:", "starter suite should carry smoke queries")
}

func TestCheckCmd_Init_RefusesExisting(t *testing.T) {
	// Given: a vault that already has a check suite
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".vaultrank")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	suitePath := filepath.Join(dataDir, "checks.yaml")
	require.NoError(t, os.WriteFile(suitePath, []byte("smoke:\n  - id: S1\n    query: hello\n"), 0o644))

	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldWd) }()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", "--init"})

	// When: running --init again
	err := cmd.Execute()

	// Then: the existing suite is not clobbered
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, readErr := os.ReadFile(suitePath)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "query: hello", "existing suite should be untouched")
}

func TestCheckCmd_NoIndex(t *testing.T) {
	// Given: a vault with no index
	tmpDir := t.TempDir()

	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldWd) }()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", "--offline"})

	// When: running checks
	err := cmd.Execute()

	// Then: should fail with a helpful message
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestCheckCmd_NoSuite(t *testing.T) {
	// Given: an ingested vault without a check suite
	setupIngestedVault(t, map[string]string{
		"notes/weekly.md": "# Weekly Review\n\nGo through the checklist and clear the inbox.\n",
	})

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", "--offline"})

	// When: running checks
	err := cmd.Execute()

	// Then: should point at --init
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no check suite")
	assert.Contains(t, err.Error(), "--init")
}

func TestCheckCmd_PassingSuite(t *testing.T) {
	// Given: an ingested vault and a golden query its index can satisfy
	tmpDir := setupIngestedVault(t, map[string]string{
		"notes/weekly.md":  "# Weekly Review\n\nGo through the checklist and clear the inbox.\n",
		"journal/jan05.md": "# Journal\n\nPlanted the tomato beds and turned the compost.\n",
	})

	suite := `golden:
  - id: G1
    name: weekly review
    query: weekly review checklist
    expected:
      - notes/weekly.md
smoke:
  - id: S1
    name: single character
    query: "k"
`
	suitePath := filepath.Join(tmpDir, ".vaultrank", "checks.yaml")
	require.NoError(t, os.WriteFile(suitePath, []byte(suite), 0o644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", "--offline"})

	// When: running the suite
	err := cmd.Execute()

	// Then: every check passes
	require.NoError(t, err, "check run should pass: %s", buf.String())
	output := buf.String()
	assert.Contains(t, output, "golden")
	assert.Contains(t, output, "1/1 passed")
	assert.Contains(t, output, "All checks passed.")
}

func TestCheckCmd_CustomSuitePath(t *testing.T) {
	// Given: an ingested vault and a suite outside the data dir
	tmpDir := setupIngestedVault(t, map[string]string{
		"notes/weekly.md": "# Weekly Review\n\nGo through the checklist and clear the inbox.\n",
	})

	suitePath := filepath.Join(tmpDir, "my-checks.yaml")
	require.NoError(t, os.WriteFile(suitePath, []byte("smoke:\n  - id: S1\n    query: review\n"), 0o644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", "--offline", "--suite", suitePath})

	// When: running with --suite
	err := cmd.Execute()

	// Then: the custom suite is used
	require.NoError(t, err, "check run should pass: %s", buf.String())
	assert.Contains(t, buf.String(), "smoke")
}
