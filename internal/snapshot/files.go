package snapshot

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// indexFiles are the flat index files a snapshot carries when present.
// The SQLite stores run in WAL mode, so the WAL sidecars travel with
// their databases; without them a copy loses unflushed writes.
var indexFiles = []string{
	"metadata.db",
	"metadata.db-wal",
	"lexical.db",
	"lexical.db-wal",
	"vectors.hnsw",
	"vectors.hnsw.meta",
}

// indexDirs are the directory-shaped index parts (bleve backend).
var indexDirs = []string{
	"lexical.bleve",
}

// copyIndex copies every present index file from srcDir into dstDir.
func copyIndex(srcDir, dstDir string) error {
	if _, err := os.Stat(srcDir); err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	for _, name := range indexFiles {
		src := filepath.Join(srcDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(dstDir, name)); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
	}

	for _, name := range indexDirs {
		src := filepath.Join(srcDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyDir(src, filepath.Join(dstDir, name)); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
	}

	return nil
}

// removeIndex deletes the live index files from a data directory,
// clearing the way for a restore. Shared-memory sidecars go too; a
// stale -shm confuses SQLite after the database underneath changes.
func removeIndex(dir string) error {
	names := make([]string, 0, len(indexFiles)+2)
	names = append(names, indexFiles...)
	names = append(names, "metadata.db-shm", "lexical.db-shm")

	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	for _, name := range indexDirs {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// dirSize totals the file sizes under dir, zero when it is missing.
func dirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
