package async

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundIngest_RunsToReady(t *testing.T) {
	dir := t.TempDir()

	b := NewBackgroundIngest(dir, func(_ context.Context, p *Progress) error {
		p.Update(2, 2, "notes/last.md")
		return nil
	})
	b.Start(context.Background())

	require.NoError(t, b.Wait())
	assert.False(t, b.Running())

	snap := b.Progress().Snapshot()
	assert.Equal(t, string(StateReady), snap.State)
	assert.Equal(t, 2, snap.FilesDone)
	assert.NoFileExists(t, filepath.Join(dir, MarkerFile))
}

func TestBackgroundIngest_RunError(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("embedder went away")

	b := NewBackgroundIngest(dir, func(context.Context, *Progress) error {
		return boom
	})
	b.Start(context.Background())

	require.ErrorIs(t, b.Wait(), boom)

	snap := b.Progress().Snapshot()
	assert.Equal(t, string(StateFailed), snap.State)
	assert.Equal(t, "embedder went away", snap.Failure)
}

func TestBackgroundIngest_MarkerCoversTheRun(t *testing.T) {
	dir := t.TempDir()
	entered := make(chan struct{})
	release := make(chan struct{})

	b := NewBackgroundIngest(dir, func(ctx context.Context, _ *Progress) error {
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	b.Start(context.Background())

	<-entered
	assert.True(t, b.Running())
	assert.True(t, IncompleteBuild(dir), "marker should exist while the build runs")

	close(release)
	require.NoError(t, b.Wait())
	assert.False(t, IncompleteBuild(dir), "marker should be removed after the build")
}

func TestBackgroundIngest_StopCancelsRun(t *testing.T) {
	dir := t.TempDir()
	entered := make(chan struct{})

	b := NewBackgroundIngest(dir, func(ctx context.Context, _ *Progress) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	})
	b.Start(context.Background())
	<-entered

	b.Stop()

	require.ErrorIs(t, b.Wait(), context.Canceled)
	assert.False(t, b.Running())
}

func TestBackgroundIngest_ParentContextCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	entered := make(chan struct{})

	b := NewBackgroundIngest(dir, func(ctx context.Context, _ *Progress) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	})
	b.Start(ctx)
	<-entered

	cancel()
	require.ErrorIs(t, b.Wait(), context.Canceled)
}

func TestBackgroundIngest_StartTwice(t *testing.T) {
	dir := t.TempDir()
	var runs atomic.Int32

	b := NewBackgroundIngest(dir, func(context.Context, *Progress) error {
		runs.Add(1)
		return nil
	})
	b.Start(context.Background())
	b.Start(context.Background())

	require.NoError(t, b.Wait())
	assert.Equal(t, int32(1), runs.Load())
}

func TestBackgroundIngest_StopBeforeStart(t *testing.T) {
	b := NewBackgroundIngest(t.TempDir(), nil)

	// Must return without blocking on a build that never started.
	b.Stop()
}

func TestBackgroundIngest_StopTwice(t *testing.T) {
	dir := t.TempDir()

	b := NewBackgroundIngest(dir, func(context.Context, *Progress) error {
		return nil
	})
	b.Start(context.Background())

	b.Stop()
	b.Stop()
	assert.False(t, b.Running())
}

func TestIncompleteBuild(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IncompleteBuild(dir))

	marker := filepath.Join(dir, MarkerFile)
	require.NoError(t, os.WriteFile(marker, []byte("2025-01-01T00:00:00Z\n"), 0o644))
	assert.True(t, IncompleteBuild(dir))
}
