package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaultrank/vaultrank/internal/chunk"
	"github.com/vaultrank/vaultrank/internal/search"
	"github.com/vaultrank/vaultrank/internal/store"
)

// shortLineMax bounds the one-line description indexed in the short channel.
const shortLineMax = 120

// Config configures the ingestion pipeline.
type Config struct {
	// Root is the vault directory.
	Root string

	// DataDir is the index directory; the writer lock lives there.
	DataDir string

	// Include and Exclude are the vault globs.
	Include []string
	Exclude []string

	// Workers bounds per-file parallelism. 0 or negative means 4.
	Workers int

	// MaxFiles aborts oversized scans. 0 means no limit.
	MaxFiles int

	// MaxFileSize skips larger files. 0 uses the scanner default.
	MaxFileSize int64

	// RespectGitignore keeps gitignored files out of the index.
	RespectGitignore bool

	// Chunking is the base splitter configuration.
	Chunking chunk.Config
}

// RunOptions alter one pipeline run.
type RunOptions struct {
	// Rebuild reindexes every file even when its content is unchanged.
	Rebuild bool

	// Progress, when set, is called after each file completes with the
	// vault-relative path just processed. It must be safe for concurrent
	// use.
	Progress func(done, total int, path string)
}

// Report summarizes one pipeline run.
type Report struct {
	FilesScanned  int
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	DocsPruned    int
	ChunksIndexed int
	ChunksDeleted int
	Took          time.Duration
}

// Pipeline drives scan, chunk, embed, and store for a whole vault.
type Pipeline struct {
	engine   *search.Engine
	meta     store.MetadataStore
	scanner  *Scanner
	splitter *chunk.Splitter
	cfg      Config
	logger   *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates an ingestion pipeline over an engine and its metadata
// store.
func NewPipeline(engine *search.Engine, meta store.MetadataStore, cfg Config, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("ingest: engine is required")
	}
	if meta == nil {
		return nil, fmt.Errorf("ingest: metadata store is required")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("ingest: vault root is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("ingest: data directory is required")
	}

	p := &Pipeline{
		engine:   engine,
		meta:     meta,
		scanner:  NewScanner(),
		splitter: chunk.NewSplitter(cfg.Chunking),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run ingests the vault. It takes the writer lock for the whole run, so a
// second concurrent ingest against the same data directory fails fast.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	start := time.Now()

	lock := store.NewIngestLock(p.cfg.DataDir)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("another ingest is running (lock held at %s)", lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release ingest lock", slog.String("error", err.Error()))
		}
	}()

	files, err := p.collectFiles(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{FilesScanned: len(files)}
	if err := p.ingestFiles(ctx, files, opts, report); err != nil {
		return nil, err
	}

	pruned, deleted, err := p.pruneMissing(ctx, files)
	if err != nil {
		return nil, err
	}
	report.DocsPruned = pruned
	report.ChunksDeleted += deleted

	if err := p.meta.SetState(ctx, store.StateKeyVaultRoot, p.cfg.Root); err != nil {
		p.logger.Warn("failed to record vault root", slog.String("error", err.Error()))
	}

	report.Took = time.Since(start)
	p.logger.Info("ingest complete",
		slog.Int("scanned", report.FilesScanned),
		slog.Int("indexed", report.FilesIndexed),
		slog.Int("skipped", report.FilesSkipped),
		slog.Int("failed", report.FilesFailed),
		slog.Int("pruned", report.DocsPruned),
		slog.Int("chunks", report.ChunksIndexed),
		slog.Duration("took", report.Took))
	return report, nil
}

// collectFiles drains the scanner into a stable, sorted file list.
func (p *Pipeline) collectFiles(ctx context.Context) ([]*FileInfo, error) {
	results, err := p.scanner.Scan(ctx, ScanOptions{
		Root:             p.cfg.Root,
		Include:          p.cfg.Include,
		Exclude:          p.cfg.Exclude,
		MaxFileSize:      p.cfg.MaxFileSize,
		MaxFiles:         p.cfg.MaxFiles,
		RespectGitignore: p.cfg.RespectGitignore,
	})
	if err != nil {
		return nil, err
	}

	var files []*FileInfo
	for res := range results {
		if res.Err != nil {
			return nil, res.Err
		}
		files = append(files, res.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Walk order is already lexical per directory, but sorting the flat
	// list keeps progress output and logs deterministic across platforms.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ingestFiles processes the scanned files with a bounded worker pool. Embedding
// dominates the cost; reads and chunking overlap with it across workers.
func (p *Pipeline) ingestFiles(ctx context.Context, files []*FileInfo, opts RunOptions, report *Report) error {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	var (
		mu   sync.Mutex
		done atomic.Int64
	)
	total := len(files)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			outcome, err := p.ingestFile(gctx, file, opts.Rebuild)

			mu.Lock()
			switch {
			case err != nil:
				report.FilesFailed++
				p.logger.Warn("file ingest failed",
					slog.String("path", file.Path),
					slog.String("error", err.Error()))
			case outcome.skipped:
				report.FilesSkipped++
			default:
				report.FilesIndexed++
				report.ChunksIndexed += outcome.chunksIndexed
				report.ChunksDeleted += outcome.chunksDeleted
			}
			mu.Unlock()

			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), total, file.Path)
			}
			return nil
		})
	}

	return g.Wait()
}

// fileOutcome is the per-file result fed into the report.
type fileOutcome struct {
	skipped       bool
	chunksIndexed int
	chunksDeleted int
}

// ingestFile indexes one vault file, replacing any chunks from a previous
// revision.
func (p *Pipeline) ingestFile(ctx context.Context, file *FileInfo, rebuild bool) (fileOutcome, error) {
	data, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return fileOutcome{}, fmt.Errorf("read %s: %w", file.Path, err)
	}
	content := string(data)

	// Version is the document revision; the skip hash also folds in the
	// chunking fingerprint so a config change forces a re-chunk even when
	// the content is identical.
	version := chunk.HashContent(content)
	skipHash := chunk.HashContent(content + "\x00" + chunk.ConfigFingerprint(p.cfg.Chunking))

	existing, err := p.meta.GetDocumentByPath(ctx, file.Path)
	if err != nil {
		return fileOutcome{}, fmt.Errorf("look up %s: %w", file.Path, err)
	}
	if existing != nil && existing.ContentHash == skipHash && !rebuild {
		return fileOutcome{skipped: true}, nil
	}

	chunks := p.splitter.Split(file.Path, version, content)
	recs := p.recordsFromChunks(chunks, file.Path)

	var outcome fileOutcome
	if existing != nil {
		oldIDs, err := p.meta.DeleteByDoc(ctx, existing.DocID)
		if err != nil {
			return fileOutcome{}, fmt.Errorf("remove stale chunks of %s: %w", file.Path, err)
		}
		// Metadata rows are already gone; this clears the indices.
		if len(oldIDs) > 0 {
			if err := p.engine.Delete(ctx, oldIDs); err != nil {
				return fileOutcome{}, fmt.Errorf("clear indices for %s: %w", file.Path, err)
			}
			outcome.chunksDeleted = len(oldIDs)
		}
	}

	if len(recs) > 0 {
		if err := p.engine.Index(ctx, recs); err != nil {
			return fileOutcome{}, fmt.Errorf("index %s: %w", file.Path, err)
		}
		outcome.chunksIndexed = len(recs)
	}

	doc := &store.Document{
		DocID:       file.Path,
		Path:        file.Path,
		ContentHash: skipHash,
		Size:        file.Size,
		ModTime:     file.ModTime,
	}
	if err := p.meta.SaveDocument(ctx, doc); err != nil {
		return fileOutcome{}, fmt.Errorf("track document %s: %w", file.Path, err)
	}
	return outcome, nil
}

// pruneMissing removes documents whose source file disappeared from the
// vault.
func (p *Pipeline) pruneMissing(ctx context.Context, files []*FileInfo) (docs, chunks int, err error) {
	tracked, err := p.meta.ListDocuments(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list tracked documents: %w", err)
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}

	for _, doc := range tracked {
		if present[doc.Path] {
			continue
		}
		ids, err := p.meta.DeleteByDoc(ctx, doc.DocID)
		if err != nil {
			return docs, chunks, fmt.Errorf("prune %s: %w", doc.Path, err)
		}
		if len(ids) > 0 {
			if err := p.engine.Delete(ctx, ids); err != nil {
				return docs, chunks, fmt.Errorf("clear indices for %s: %w", doc.Path, err)
			}
		}
		docs++
		chunks += len(ids)
		p.logger.Debug("pruned deleted document",
			slog.String("path", doc.Path),
			slog.Int("chunks", len(ids)))
	}
	return docs, chunks, nil
}

// recordsFromChunks converts splitter output into storable records.
func (p *Pipeline) recordsFromChunks(chunks []*chunk.Chunk, path string) []*store.Record {
	now := time.Now().UTC()
	recs := make([]*store.Record, 0, len(chunks))
	for _, c := range chunks {
		recs = append(recs, &store.Record{
			ChunkID:     c.ChunkID,
			DocID:       c.DocID,
			Path:        path,
			Short:       shortLine(c.Content),
			Title:       c.Title,
			Body:        c.Content,
			ContentType: string(c.Type),
			StartByte:   c.Span.Start,
			EndByte:     c.Span.End,
			Version:     c.Version,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return recs
}

// shortLine condenses a chunk into the one-liner indexed by the short
// channel: the first non-blank line, stripped of markdown lead-in.
func shortLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>-*+ \t")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > shortLineMax {
			return string(runes[:shortLineMax])
		}
		return line
	}
	return ""
}
