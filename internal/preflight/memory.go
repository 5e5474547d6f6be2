package preflight

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MinMemoryBytes is the minimum recommended available memory (1GB).
// The HNSW graph and the lexical index both live in memory during
// ingest, so constrained hosts thrash below this.
const MinMemoryBytes = 1 << 30

// CheckMemory verifies available system memory.
func (c *Checker) CheckMemory() CheckResult {
	free := availableMemory()
	msg := fmt.Sprintf("%s available (minimum: 1 GB)", formatBytes(free))
	if free < MinMemoryBytes {
		return fail("memory", msg, "")
	}
	return pass("memory", msg)
}

// availableMemory reads MemAvailable from /proc/meminfo. There is no
// portable API for this outside Linux, so elsewhere (and on parse
// failure) a workstation-class 4GB is assumed.
func availableMemory() uint64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 4 << 30
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		// "MemAvailable:    8021412 kB"
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if kb, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				return kb * 1024
			}
		}
		break
	}
	return 4 << 30
}
