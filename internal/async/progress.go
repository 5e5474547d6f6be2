package async

import (
	"sync"
	"time"
)

// State is the lifecycle of a background build.
type State string

const (
	// StateBuilding means the ingest is still running.
	StateBuilding State = "building"
	// StateReady means the ingest finished and the index is complete.
	StateReady State = "ready"
	// StateFailed means the ingest stopped on an error.
	StateFailed State = "failed"
)

// Snapshot is a point-in-time copy of build progress, shaped for the
// vault_stats tool output.
type Snapshot struct {
	State          string  `json:"state"`
	FilesTotal     int     `json:"files_total"`
	FilesDone      int     `json:"files_done"`
	CurrentPath    string  `json:"current_path,omitempty"`
	PercentDone    float64 `json:"percent_done"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Failure        string  `json:"failure,omitempty"`
}

// Progress tracks a running ingest for concurrent readers. The ingest
// goroutine writes, tool handlers read.
type Progress struct {
	mu sync.RWMutex

	state       State
	filesTotal  int
	filesDone   int
	currentPath string
	startTime   time.Time
	failure     string
}

// NewProgress creates a tracker in the building state.
func NewProgress() *Progress {
	return &Progress{
		state:     StateBuilding,
		startTime: time.Now(),
	}
}

// Update records file-level progress. The signature matches the ingest
// pipeline's progress callback so it can be passed through directly.
func (p *Progress) Update(done, total int, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesDone = done
	p.filesTotal = total
	p.currentPath = path
}

// SetReady marks the build complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateReady
	p.currentPath = ""
}

// SetFailed marks the build failed with a reason.
func (p *Progress) SetFailed(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateFailed
	p.failure = reason
}

// Building returns true while the ingest is still running.
func (p *Progress) Building() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateBuilding
}

// Snapshot returns an immutable copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesDone) / float64(p.filesTotal) * 100
	}

	return Snapshot{
		State:          string(p.state),
		FilesTotal:     p.filesTotal,
		FilesDone:      p.filesDone,
		CurrentPath:    p.currentPath,
		PercentDone:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		Failure:        p.failure,
	}
}
