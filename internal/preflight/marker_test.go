package preflight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMarker(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), []byte(content), 0644))
}

func TestNeedsCheck(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
		want  bool
	}{
		{
			name:  "no marker",
			setup: func(*testing.T, string) {},
			want:  true,
		},
		{
			name: "fresh marker",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, MarkPassed(dir))
			},
			want: false,
		},
		{
			name: "stale marker",
			setup: func(t *testing.T, dir string) {
				old := time.Now().UTC().Add(-StaleAfter - time.Hour).Format(time.RFC3339)
				writeMarker(t, dir, old+"\n")
			},
			want: true,
		},
		{
			name: "corrupt marker",
			setup: func(t *testing.T, dir string) {
				writeMarker(t, dir, "not a time")
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)
			assert.Equal(t, tt.want, NeedsCheck(dir))
		})
	}
}

func TestMarkPassed_CreatesFile(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, MarkPassed(tmpDir))

	content, err := os.ReadFile(filepath.Join(tmpDir, MarkerFile))
	require.NoError(t, err)

	// The file holds one RFC 3339 timestamp plus a trailing newline.
	_, err = time.Parse(time.RFC3339, string(content[:len(content)-1]))
	assert.NoError(t, err)
}

func TestMarkPassed_CreatesDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "subdir", ".vaultrank")

	require.NoError(t, MarkPassed(dataDir))

	assert.DirExists(t, dataDir)
	assert.FileExists(t, filepath.Join(dataDir, MarkerFile))
}

func TestClearMarker(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, MarkPassed(tmpDir))

	require.NoError(t, ClearMarker(tmpDir))
	assert.NoFileExists(t, filepath.Join(tmpDir, MarkerFile))

	// Clearing again is idempotent.
	assert.NoError(t, ClearMarker(tmpDir))
}

func TestMarkerAge(t *testing.T) {
	tmpDir := t.TempDir()

	assert.Equal(t, time.Duration(0), MarkerAge(tmpDir), "no marker means zero age")

	require.NoError(t, MarkPassed(tmpDir))
	assert.Less(t, MarkerAge(tmpDir), time.Second)
}
