package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgress(t *testing.T) {
	p := NewProgress()

	require.True(t, p.Building())

	snap := p.Snapshot()
	assert.Equal(t, string(StateBuilding), snap.State)
	assert.Equal(t, 0, snap.FilesTotal)
	assert.Equal(t, 0, snap.FilesDone)
	assert.Zero(t, snap.PercentDone)
	assert.Empty(t, snap.Failure)
}

func TestProgress_Update(t *testing.T) {
	p := NewProgress()
	p.Update(3, 12, "projects/deploy.md")

	snap := p.Snapshot()
	assert.Equal(t, 3, snap.FilesDone)
	assert.Equal(t, 12, snap.FilesTotal)
	assert.Equal(t, "projects/deploy.md", snap.CurrentPath)
	assert.InDelta(t, 25.0, snap.PercentDone, 0.01)
}

func TestProgress_Update_ZeroTotal(t *testing.T) {
	p := NewProgress()
	p.Update(0, 0, "")

	// No division by zero when the scan found nothing yet.
	assert.Zero(t, p.Snapshot().PercentDone)
}

func TestProgress_SetReady(t *testing.T) {
	p := NewProgress()
	p.Update(12, 12, "journal/2025-01-01.md")
	p.SetReady()

	require.False(t, p.Building())

	snap := p.Snapshot()
	assert.Equal(t, string(StateReady), snap.State)
	assert.Empty(t, snap.CurrentPath)
	assert.Equal(t, 12, snap.FilesDone)
}

func TestProgress_SetFailed(t *testing.T) {
	p := NewProgress()
	p.SetFailed("disk full")

	require.False(t, p.Building())

	snap := p.Snapshot()
	assert.Equal(t, string(StateFailed), snap.State)
	assert.Equal(t, "disk full", snap.Failure)
}
