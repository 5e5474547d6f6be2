// Package ingest walks a vault, chunks its documents, and feeds the search
// indices. Re-running it is idempotent: unchanged files are skipped, changed
// files are replaced, and deleted files are pruned.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vaultrank/vaultrank/internal/gitignore"
)

// DefaultMaxFileSize caps note size at 1MB. Vault documents are text; a
// bigger file is almost always an export or an attachment.
const DefaultMaxFileSize = 1 * 1024 * 1024

// binarySniffLen is how many leading bytes get checked for NUL.
const binarySniffLen = 512

// FileInfo describes one vault file the scanner matched.
type FileInfo struct {
	// Path is vault-relative with forward slashes. It doubles as the
	// document id.
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// ScanResult is one item from the scan channel. Err is set only for
// conditions that abort the walk.
type ScanResult struct {
	File *FileInfo
	Err  error
}

// ScanOptions configures one vault walk.
type ScanOptions struct {
	// Root is the vault directory.
	Root string

	// Include are doublestar globs of files to pick up. Empty matches
	// everything.
	Include []string

	// Exclude are doublestar globs that override includes. A pattern of
	// the form "**/dir/**" also prunes the directory itself.
	Exclude []string

	// MaxFileSize skips files larger than this. 0 uses the default.
	MaxFileSize int64

	// MaxFiles aborts a walk that matches more files than this. 0 means
	// no limit.
	MaxFiles int

	// FollowSymlinks includes symlinked files. Off by default because a
	// vault symlinked to itself would loop.
	FollowSymlinks bool

	// RespectGitignore honors .gitignore files found during the walk. The
	// root one applies to the whole vault, a nested one to its own
	// subtree. An ignored directory is pruned wholesale, so a negation
	// inside it cannot re-include anything, same as git.
	RespectGitignore bool
}

// Scanner streams the files of a vault matching include/exclude globs.
type Scanner struct{}

// NewScanner returns a vault scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan walks the vault and streams matches. The channel closes when the
// walk finishes, aborts, or the context is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (<-chan ScanResult, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", absRoot)
	}

	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern: %q", p)
		}
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxSize, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts ScanOptions, maxSize int64, results chan<- ScanResult) {
	matched := 0

	var ignores *gitignore.Matcher
	if opts.RespectGitignore {
		ignores = gitignore.New()
	}

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			loadIgnores(ignores, path, "")
			return nil
		}

		if d.IsDir() {
			if excludesDir(rel, opts.Exclude) {
				return filepath.SkipDir
			}
			if ignores != nil {
				if ignores.Ignored(rel, true) {
					return filepath.SkipDir
				}
				// WalkDir visits a directory before its children, so
				// rules load before anything they could exclude.
				loadIgnores(ignores, path, rel)
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if ignores != nil && ignores.Ignored(rel, false) {
			return nil
		}
		if matchesAny(rel, opts.Exclude) {
			return nil
		}
		if len(opts.Include) > 0 && !matchesAny(rel, opts.Include) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() > maxSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		matched++
		if opts.MaxFiles > 0 && matched > opts.MaxFiles {
			return fmt.Errorf("scan matched more than %d files, narrow the include globs or raise ingest.max_files", opts.MaxFiles)
		}

		select {
		case results <- ScanResult{File: &FileInfo{
			Path:    rel,
			AbsPath: path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- ScanResult{Err: err}:
		case <-ctx.Done():
		}
	}
}

// loadIgnores pulls dir's .gitignore rules into the matcher. A missing
// file is the normal case; an unreadable one costs only its own rules.
func loadIgnores(m *gitignore.Matcher, dir, base string) {
	if m == nil {
		return
	}
	_ = m.AddFile(filepath.Join(dir, gitignore.File), base)
}

// matchesAny reports whether rel matches any of the globs.
func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// excludesDir prunes a directory when an exclude matches it directly, or
// when an exclude of the form "prefix/**" matches the directory path. That
// second case makes "**/.git/**" stop the walk at .git instead of visiting
// every object file inside it.
func excludesDir(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
		if trimmed, found := strings.CutSuffix(p, "/**"); found {
			if ok, err := doublestar.Match(trimmed, rel); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// isBinaryFile sniffs the leading bytes for NUL. Vault content is text;
// anything binary is an attachment that slipped past the globs.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
