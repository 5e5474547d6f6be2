package ui

import (
	"sync"
	"time"
)

const (
	// speedSampleInterval is the minimum time between throughput samples.
	speedSampleInterval = 500 * time.Millisecond

	// speedSmoothingFactor controls the exponential moving average of
	// throughput. Lower values smooth more.
	speedSmoothingFactor = 0.2

	// speedHistoryLen is the number of throughput samples kept for the
	// sparkline.
	speedHistoryLen = 60
)

// TrackerStats is a point-in-time snapshot of tracker state.
type TrackerStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0.0 to 1.0 within the current stage
	CurrentFile string
	Elapsed     time.Duration
	Errors      int
	Warnings    int
	Speed       float64 // files/sec, instantaneous
	AvgSpeed    float64 // files/sec, smoothed
	PeakSpeed   float64 // files/sec, highest observed
}

// ProgressTracker accumulates ingest progress shared by renderers. All
// methods are safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	stage       Stage
	current     int
	total       int
	currentFile string

	events []ErrorEvent

	startTime  time.Time
	stageStart time.Time

	lastSample   time.Time
	lastCurrent  int
	currentSpeed float64
	avgSpeed     float64
	peakSpeed    float64
	history      *Sparkline
}

// NewProgressTracker creates a tracker with the clock started.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		startTime:  now,
		stageStart: now,
		history:    NewSparkline(speedHistoryLen),
	}
}

// SetStage transitions to a new stage and resets stage progress.
func (t *ProgressTracker) SetStage(stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stage == t.stage {
		return
	}

	t.stage = stage
	t.stageStart = time.Now()
	t.current = 0
	t.total = 0
	t.currentFile = ""
	t.lastSample = time.Time{}
	t.lastCurrent = 0
}

// Update records progress within the current stage.
func (t *ProgressTracker) Update(current, total int, file string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = current
	t.total = total
	if file != "" {
		t.currentFile = file
	}

	t.sampleSpeedLocked()
}

// sampleSpeedLocked measures throughput no more often than
// speedSampleInterval. Caller holds t.mu.
func (t *ProgressTracker) sampleSpeedLocked() {
	now := time.Now()

	if t.lastSample.IsZero() {
		t.lastSample = now
		t.lastCurrent = t.current
		return
	}

	elapsed := now.Sub(t.lastSample)
	if elapsed < speedSampleInterval {
		return
	}

	processed := t.current - t.lastCurrent
	if processed < 0 {
		processed = 0
	}
	speed := float64(processed) / elapsed.Seconds()

	t.currentSpeed = speed
	if t.avgSpeed == 0 {
		t.avgSpeed = speed
	} else {
		t.avgSpeed = speedSmoothingFactor*speed + (1-speedSmoothingFactor)*t.avgSpeed
	}
	if speed > t.peakSpeed {
		t.peakSpeed = speed
	}
	t.history.Add(speed)

	t.lastSample = now
	t.lastCurrent = t.current
}

// AddError records an error or warning event.
func (t *ProgressTracker) AddError(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

// Stats returns a snapshot of the current tracker state.
func (t *ProgressTracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var progress float64
	if t.total > 0 {
		progress = float64(t.current) / float64(t.total)
		if progress > 1 {
			progress = 1
		}
	}

	errs, warns := t.countLocked()

	return TrackerStats{
		Stage:       t.stage,
		Current:     t.current,
		Total:       t.total,
		Progress:    progress,
		CurrentFile: t.currentFile,
		Elapsed:     time.Since(t.startTime),
		Errors:      errs,
		Warnings:    warns,
		Speed:       t.currentSpeed,
		AvgSpeed:    t.avgSpeed,
		PeakSpeed:   t.peakSpeed,
	}
}

// Errors returns a copy of all recorded events.
func (t *ProgressTracker) Errors() []ErrorEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ErrorEvent, len(t.events))
	copy(out, t.events)
	return out
}

// ErrorCount returns the number of hard errors recorded.
func (t *ProgressTracker) ErrorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	errs, _ := t.countLocked()
	return errs
}

// WarnCount returns the number of warnings recorded.
func (t *ProgressTracker) WarnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, warns := t.countLocked()
	return warns
}

func (t *ProgressTracker) countLocked() (errs, warns int) {
	for _, e := range t.events {
		if e.IsWarn {
			warns++
		} else {
			errs++
		}
	}
	return errs, warns
}

// Elapsed returns time since the tracker was created.
func (t *ProgressTracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.startTime)
}

// StageElapsed returns time since the current stage started.
func (t *ProgressTracker) StageElapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.stageStart)
}

// SpeedStats returns current, smoothed, and peak throughput.
func (t *ProgressTracker) SpeedStats() (current, avg, peak float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSpeed, t.avgSpeed, t.peakSpeed
}

// RenderSparkline returns the throughput history strip.
func (t *ProgressTracker) RenderSparkline() string {
	return t.history.Render()
}
