package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the lowest fd limit ingest and watch mode can
// run with. Watch mode holds one inotify watch per directory and ingest
// opens files across worker goroutines, so low limits fail mid-run.
const MinFileDescriptors = 1024

// CheckFileDescriptors verifies the soft RLIMIT_NOFILE bound.
func (c *Checker) CheckFileDescriptors() CheckResult {
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		return fail("file_descriptors", fmt.Sprintf("cannot read rlimit: %v", err), "")
	}

	msg := fmt.Sprintf("%d (minimum: %d)", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		return fail("file_descriptors", msg,
			"Run 'ulimit -n 4096' before ingesting large vaults")
	}
	return pass("file_descriptors", msg)
}
