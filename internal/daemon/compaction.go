package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vaultrank/vaultrank/internal/store"
)

// CompactionManager rebuilds vector indexes during idle time. Every
// completed search arms a per-vault idle timer; when it fires and the
// orphan gates pass, the vault's HNSW graph is rebuilt without its
// lazily deleted nodes. A search arriving mid-rebuild interrupts it.
type CompactionManager struct {
	cfg    CompactionConfig
	daemon *Daemon

	mu     sync.Mutex
	vaults map[string]*compactionState

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// compactionState tracks one vault's compaction schedule.
type compactionState struct {
	lastSearch  time.Time
	lastCompact time.Time
	idleTimer   *time.Timer
	compacting  bool
	cancelRun   context.CancelFunc
}

// NewCompactionManager creates a manager for the daemon's vaults.
func NewCompactionManager(cfg CompactionConfig, d *Daemon) *CompactionManager {
	return &CompactionManager{
		cfg:    cfg,
		daemon: d,
		vaults: make(map[string]*compactionState),
	}
}

// Start arms the manager. Before Start, OnSearchComplete is a no-op.
func (m *CompactionManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if m.cfg.Enabled {
		slog.Debug("idle compaction enabled",
			slog.Duration("idle_timeout", m.cfg.IdleTimeout),
			slog.Duration("cooldown", m.cfg.Cooldown))
	}
}

// Stop cancels any running compaction, disarms the timers, and waits
// for in-flight work.
func (m *CompactionManager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		for _, state := range m.vaults {
			if state.idleTimer != nil {
				state.idleTimer.Stop()
			}
		}
		m.mu.Unlock()

		m.wg.Wait()
	})
}

// OnSearchComplete resets the vault's idle timer. Called after every
// successful search.
func (m *CompactionManager) OnSearchComplete(root string) {
	if !m.cfg.Enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil || m.ctx.Err() != nil {
		return
	}

	state, ok := m.vaults[root]
	if !ok {
		state = &compactionState{}
		m.vaults[root] = state
	}

	state.lastSearch = time.Now()
	if state.idleTimer != nil {
		state.idleTimer.Stop()
	}
	state.idleTimer = time.AfterFunc(m.cfg.IdleTimeout, func() {
		m.onIdle(root)
	})
}

// InterruptCompaction cancels an in-flight compaction of the vault so a
// fresh search never queues behind the rebuild.
func (m *CompactionManager) InterruptCompaction(root string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.vaults[root]; ok && state.compacting && state.cancelRun != nil {
		state.cancelRun()
	}
}

// onIdle fires when a vault has been quiet for the idle timeout.
func (m *CompactionManager) onIdle(root string) {
	if !m.shouldCompact(root) {
		return
	}
	m.startCompaction(root)
}

// shouldCompact applies the gates: manager running, vault still loaded,
// not already compacting, cooldown elapsed, and enough orphans to make
// a rebuild worthwhile.
func (m *CompactionManager) shouldCompact(root string) bool {
	if !m.cfg.Enabled {
		return false
	}

	m.mu.Lock()
	if m.ctx == nil || m.ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	state, ok := m.vaults[root]
	if !ok || state.compacting {
		m.mu.Unlock()
		return false
	}
	if !state.lastCompact.IsZero() && time.Since(state.lastCompact) < m.cfg.Cooldown {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	// Maintenance never loads a vault; an evicted vault compacts on its
	// next use instead.
	vault, ok := m.daemon.loadedVault(root)
	if !ok {
		return false
	}

	stats := vault.Vector().Stats()
	if stats.Orphans < m.cfg.MinOrphanCount || stats.GraphNodes == 0 {
		return false
	}
	return float64(stats.Orphans)/float64(stats.GraphNodes) >= m.cfg.OrphanThreshold
}

// startCompaction marks the vault compacting and runs the rebuild in
// the background.
func (m *CompactionManager) startCompaction(root string) {
	m.mu.Lock()
	state, ok := m.vaults[root]
	if !ok || state.compacting || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancelRun := context.WithCancel(m.ctx)
	state.compacting = true
	state.cancelRun = cancelRun
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			cancelRun()
			m.mu.Lock()
			state.compacting = false
			state.cancelRun = nil
			m.mu.Unlock()
		}()

		m.runCompaction(runCtx, root)
	}()
}

// runCompaction rebuilds the vault's vector index and persists it.
func (m *CompactionManager) runCompaction(ctx context.Context, root string) {
	vault, ok := m.daemon.loadedVault(root)
	if !ok {
		return
	}
	vector := vault.Vector()
	before := vector.Stats()
	start := time.Now()

	err := vector.Compact(ctx)
	switch {
	case err == nil:

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		slog.Debug("compaction interrupted", slog.String("root", root))
		return

	case errors.Is(err, store.ErrCompactionStale):
		// The index changed under the rebuild; the next idle period
		// gets a fresh attempt.
		slog.Debug("compaction raced an index write", slog.String("root", root))
		return

	default:
		slog.Warn("compaction failed",
			slog.String("root", root), slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	if state, ok := m.vaults[root]; ok {
		state.lastCompact = time.Now()
	}
	m.mu.Unlock()

	if err := vector.Save(); err != nil {
		slog.Warn("failed to persist compacted index",
			slog.String("root", root), slog.String("error", err.Error()))
	}

	slog.Info("vector index compacted",
		slog.String("root", root),
		slog.Int("orphans_removed", before.Orphans),
		slog.Duration("took", time.Since(start).Round(time.Millisecond)))
}
