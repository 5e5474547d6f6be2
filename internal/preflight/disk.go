package preflight

import (
	"fmt"
	"syscall"
)

// MinDiskSpaceBytes is the minimum free space required at the vault
// root (100MB). The index typically stays under a tenth of the vault
// size, so this covers small and mid-size vaults with room for
// compaction.
const MinDiskSpaceBytes = 100 << 20

// CheckDiskSpace verifies free space on the filesystem holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return fail("disk_space", fmt.Sprintf("cannot stat filesystem: %v", err), "")
	}

	free := fs.Bavail * uint64(fs.Bsize)
	msg := fmt.Sprintf("%s free (minimum: 100 MB)", formatBytes(free))
	if free < MinDiskSpaceBytes {
		return fail("disk_space", msg, "")
	}
	return pass("disk_space", msg)
}

// formatBytes renders a byte count with a binary-unit suffix.
func formatBytes(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%d bytes", n)
	}
	units := []string{"KB", "MB", "GB", "TB"}
	v := float64(n) / 1024
	for _, u := range units {
		if v < 1024 || u == "TB" {
			return fmt.Sprintf("%.1f %s", v, u)
		}
		v /= 1024
	}
	return ""
}
