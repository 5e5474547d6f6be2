package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLogFixture(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "vaultrank.log")
	content := `{"time":"2026-08-25T10:00:00.000Z","level":"INFO","msg":"first entry"}
{"time":"2026-08-25T10:00:01.000Z","level":"ERROR","msg":"second entry","component":"ingest"}
`
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))
	return logPath
}

func TestLogsCmd_AddedToRoot(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// When: finding logs command
	logsCmd, _, err := cmd.Find([]string{"logs"})

	// Then: logs command should exist
	require.NoError(t, err)
	assert.Equal(t, "logs", logsCmd.Name())
}

func TestLogsCmd_HasFlags(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	logsCmd, _, err := cmd.Find([]string{"logs"})
	require.NoError(t, err)

	// Then: the viewer flags should be registered with their defaults
	followFlag := logsCmd.Flags().Lookup("follow")
	require.NotNil(t, followFlag, "should have --follow flag")
	assert.Equal(t, "false", followFlag.DefValue)

	linesFlag := logsCmd.Flags().Lookup("lines")
	require.NotNil(t, linesFlag, "should have --lines flag")
	assert.Equal(t, "50", linesFlag.DefValue)

	levelFlag := logsCmd.Flags().Lookup("level")
	require.NotNil(t, levelFlag, "should have --level flag")

	filterFlag := logsCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag, "should have --filter flag")

	fileFlag := logsCmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag, "should have --file flag")
}

func TestLogsCmd_MissingExplicitFile(t *testing.T) {
	// Given: an explicit path that does not exist
	tmpDir := t.TempDir()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs", "--file", filepath.Join(tmpDir, "missing.log")})

	// When: viewing logs
	err := cmd.Execute()

	// Then: should fail naming the missing file
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")
}

func TestLogsCmd_NoDefaultLogFile(t *testing.T) {
	// Given: a home directory with no logs
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs"})

	// When: viewing logs
	err := cmd.Execute()

	// Then: should fail with a pointer to --debug
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log file found")
	assert.Contains(t, err.Error(), "--debug")
}

func TestLogsCmd_TailShowsEntries(t *testing.T) {
	// Given: a log file with two entries
	logPath := writeLogFixture(t)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs", "--file", logPath, "--no-color"})

	// When: tailing the file
	err := cmd.Execute()

	// Then: both entries render as time, level, message, attrs
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "first entry")
	assert.Contains(t, output, "second entry")
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "ERROR")
	assert.Contains(t, output, "component=ingest")
}

func TestLogsCmd_LinesLimit(t *testing.T) {
	// Given: a log file with two entries
	logPath := writeLogFixture(t)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs", "--file", logPath, "--no-color", "-n", "1"})

	// When: tailing the last line only
	err := cmd.Execute()

	// Then: only the newest entry shows
	require.NoError(t, err)
	output := buf.String()
	assert.NotContains(t, output, "first entry")
	assert.Contains(t, output, "second entry")
}

func TestLogsCmd_LevelFilter(t *testing.T) {
	// Given: a log file with INFO and ERROR entries
	logPath := writeLogFixture(t)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs", "--file", logPath, "--no-color", "--level", "error"})

	// When: filtering to errors
	err := cmd.Execute()

	// Then: the INFO entry is dropped
	require.NoError(t, err)
	output := buf.String()
	assert.NotContains(t, output, "first entry")
	assert.Contains(t, output, "second entry")
}

func TestLogsCmd_FilterPattern(t *testing.T) {
	// Given: a log file where one entry mentions the ingest component
	logPath := writeLogFixture(t)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs", "--file", logPath, "--no-color", "--filter", "ingest"})

	// When: filtering by keyword
	err := cmd.Execute()

	// Then: only the matching entry shows
	require.NoError(t, err)
	output := buf.String()
	assert.NotContains(t, output, "first entry")
	assert.Contains(t, output, "second entry")
}

func TestLogsCmd_InvalidFilterPattern(t *testing.T) {
	// Given: a broken regex
	logPath := writeLogFixture(t)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs", "--file", logPath, "--filter", "["})

	// When: compiling the filter
	err := cmd.Execute()

	// Then: should fail before reading anything
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestLogsCmd_PassesThroughUnparseable(t *testing.T) {
	// Given: a log file with a plain-text line mixed in
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "vaultrank.log")
	content := `panic: something broke
{"time":"2026-08-25T10:00:01.000Z","level":"INFO","msg":"recovered"}
`
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"logs", "--file", logPath, "--no-color"})

	// When: tailing the file
	err := cmd.Execute()

	// Then: the raw line passes through untouched
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "panic: something broke")
	assert.Contains(t, output, "recovered")
}
