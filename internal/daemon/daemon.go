package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/search"
	"github.com/vaultrank/vaultrank/pkg/searcher"
)

// vaultState is one lazily opened search stack plus its LRU bookkeeping.
type vaultState struct {
	vault    *searcher.Vault
	loadedAt time.Time
	lastUsed time.Time
}

// Daemon owns the shared embedder and the per-vault search stacks. It
// implements RequestHandler for the socket server.
type Daemon struct {
	config    Config
	pidFile   *PIDFile
	server    *Server
	compactor *CompactionManager
	embedder  embed.Embedder
	started   time.Time

	mu     sync.Mutex
	vaults map[string]*vaultState
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithEmbedder injects a pre-built embedder instead of constructing one
// at Start. The daemon takes ownership and closes it on shutdown.
func WithEmbedder(e embed.Embedder) Option {
	return func(d *Daemon) {
		d.embedder = e
	}
}

// NewDaemon creates a daemon from the given config.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		config:  cfg,
		pidFile: NewPIDFile(cfg.PIDPath),
		vaults:  make(map[string]*vaultState),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.compactor = NewCompactionManager(cfg.Compaction, d)

	return d, nil
}

// Start runs the daemon until ctx is cancelled. It refuses to start
// when another daemon holds the PID file, cleans up stale socket and
// PID files from a crashed predecessor, and returns ctx.Err() on a
// clean shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.config.EnsureDir(); err != nil {
		return err
	}

	if d.pidFile.IsRunning() {
		pid, _ := d.pidFile.Read()
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	// A dead daemon's leftovers would block the fresh start.
	_ = d.pidFile.Remove()
	_ = os.Remove(d.config.SocketPath)

	if err := d.pidFile.Write(); err != nil {
		return err
	}
	defer func() { _ = d.pidFile.Remove() }()

	if d.embedder == nil {
		// The warm embedder is the whole point of the daemon; a failed
		// probe falls back inside the factory rather than failing here.
		embedCtx, cancel := context.WithTimeout(ctx, searcher.DefaultInitTimeout)
		e, err := embed.NewEmbedder(embedCtx, embed.DefaultFactoryConfig())
		cancel()
		if err != nil {
			return fmt.Errorf("initialize embedder: %w", err)
		}
		d.embedder = e
	}

	server, err := NewServer(d.config.SocketPath, d.config.Timeout)
	if err != nil {
		return err
	}
	server.SetHandler(d)
	d.server = server
	d.started = time.Now()

	d.compactor.Start()
	defer d.compactor.Stop()
	defer d.cleanup()

	slog.Info("daemon starting",
		slog.Int("pid", os.Getpid()),
		slog.String("embedder", d.embedder.ModelName()))

	return server.ListenAndServe(ctx)
}

// HandleSearch opens (or reuses) the vault's stack and runs the query.
// An in-flight compaction of the same vault is interrupted first so the
// search never waits behind a rebuild.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) (*SearchReply, error) {
	vault, err := d.vaultFor(ctx, params.Vault)
	if err != nil {
		return nil, err
	}

	d.compactor.InterruptCompaction(vault.Root())

	resp, err := vault.Search(ctx, params.Query, search.SearchOptions{
		Limit:        params.Limit,
		Tag:          params.Tag,
		LexicalOnly:  params.LexicalOnly,
		MaxPerSource: params.MaxPerSource,
		Scopes:       params.Scopes,
		Types:        params.Types,
	})
	if err != nil {
		return nil, err
	}

	d.compactor.OnSearchComplete(vault.Root())

	return buildReply(resp), nil
}

// GetStatus reports the daemon's embedder and loaded vaults.
func (d *Daemon) GetStatus() StatusResult {
	status := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		EmbedderModel:  "unavailable",
		EmbedderStatus: "unavailable",
	}

	if d.embedder != nil {
		status.EmbedderModel = d.embedder.ModelName()
		status.EmbedderStatus = "ready"
	}

	d.mu.Lock()
	status.VaultsLoaded = len(d.vaults)
	for root := range d.vaults {
		status.Vaults = append(status.Vaults, root)
	}
	d.mu.Unlock()

	return status
}

// vaultFor returns the open stack for a vault root, opening it on first
// use. The open happens outside the lock; when two requests race, the
// first insert wins and the loser's stack is closed.
func (d *Daemon) vaultFor(ctx context.Context, root string) (*searcher.Vault, error) {
	d.mu.Lock()
	if state, ok := d.vaults[root]; ok {
		state.lastUsed = time.Now()
		d.mu.Unlock()
		return state.vault, nil
	}
	d.mu.Unlock()

	if d.embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}

	vault, err := searcher.Open(ctx, root, searcher.Options{
		Embedder:     &sharedEmbedder{d.embedder},
		RequireIndex: true,
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if state, ok := d.vaults[vault.Root()]; ok {
		_ = vault.Close()
		state.lastUsed = time.Now()
		return state.vault, nil
	}

	now := time.Now()
	d.vaults[vault.Root()] = &vaultState{
		vault:    vault,
		loadedAt: now,
		lastUsed: now,
	}
	slog.Info("vault loaded", slog.String("root", vault.Root()), slog.Int("loaded", len(d.vaults)))

	if len(d.vaults) > d.config.MaxVaults {
		d.evictOldestLocked()
	}

	return vault, nil
}

// loadedVault peeks at an open stack without loading or touching LRU
// order. The compactor uses it so maintenance never loads vaults.
func (d *Daemon) loadedVault(root string) (*searcher.Vault, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.vaults[root]
	if !ok {
		return nil, false
	}
	return state.vault, true
}

// evictLRU closes and drops the least recently used vault. Safe to call
// with no vaults loaded.
func (d *Daemon) evictLRU() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictOldestLocked()
}

func (d *Daemon) evictOldestLocked() {
	var (
		oldestRoot string
		oldestUsed time.Time
	)
	for root, state := range d.vaults {
		if oldestRoot == "" || state.lastUsed.Before(oldestUsed) {
			oldestRoot = root
			oldestUsed = state.lastUsed
		}
	}
	if oldestRoot == "" {
		return
	}

	state := d.vaults[oldestRoot]
	delete(d.vaults, oldestRoot)
	if err := state.vault.Close(); err != nil {
		slog.Warn("failed to close evicted vault",
			slog.String("root", oldestRoot), slog.String("error", err.Error()))
	}
	slog.Info("vault evicted", slog.String("root", oldestRoot))
}

// cleanup closes every vault stack and the shared embedder.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	vaults := d.vaults
	d.vaults = make(map[string]*vaultState)
	d.mu.Unlock()

	for root, state := range vaults {
		if err := state.vault.Close(); err != nil {
			slog.Warn("failed to close vault",
				slog.String("root", root), slog.String("error", err.Error()))
		}
	}

	if d.embedder != nil {
		_ = d.embedder.Close()
		d.embedder = nil
	}
}

// buildReply converts an engine response to the wire form.
func buildReply(resp *search.Response) *SearchReply {
	reply := &SearchReply{
		RequestID: resp.RequestID,
		Query:     resp.Query,
		QueryType: string(resp.QueryType),
		ColdStart: resp.ColdStart,
		TookMS:    resp.Took.Milliseconds(),
		Results:   make([]SearchResult, 0, len(resp.Results)),
	}

	for _, c := range resp.Results {
		reply.Results = append(reply.Results, SearchResult{
			ChunkID:     c.ChunkID,
			Path:        c.Path,
			Title:       c.Title,
			Content:     c.Content,
			ContentType: c.ContentType,
			Score:       c.FinalScore,
			Prior:       c.PriorScore,
			Channels: ChannelBreakdown{
				Path:   c.Channels.Path,
				Short:  c.Channels.Short,
				Title:  c.Channels.Title,
				Body:   c.Channels.Body,
				Vector: c.Channels.Vector,
			},
			MatchedTerms: c.MatchedTerms,
		})
	}

	return reply
}

// sharedEmbedder hands the daemon's embedder to a vault stack without
// giving up ownership. Engine.Close closes its embedder, and every
// stack shares this one, so Close must not propagate.
type sharedEmbedder struct {
	embed.Embedder
}

func (s *sharedEmbedder) Close() error { return nil }
