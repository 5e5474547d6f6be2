// Package profiling captures CPU, heap, and execution trace profiles
// for diagnosing slow ingests and queries.
package profiling

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Profile file names written under the session directory.
const (
	CPUProfile       = "cpu.pprof"
	HeapProfile      = "heap.pprof"
	GoroutineProfile = "goroutine.pprof"
	TraceFile        = "trace.out"
)

// Session captures profiles for one run. Start begins CPU profiling
// immediately; Stop flushes everything to the session directory.
type Session struct {
	dir       string
	withTrace bool
	cpuFile   *os.File
	traceFile *os.File
}

// Option configures a Session.
type Option func(*Session)

// WithTrace also records an execution trace alongside the profiles.
func WithTrace() Option {
	return func(s *Session) {
		s.withTrace = true
	}
}

// Start creates the session directory and begins CPU profiling. The
// caller must invoke Stop to flush data.
func Start(dir string, opts ...Option) (*Session, error) {
	s := &Session{dir: dir}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, CPUProfile))
	if err != nil {
		return nil, fmt.Errorf("create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start CPU profile: %w", err)
	}
	s.cpuFile = f

	if s.withTrace {
		tf, err := os.Create(filepath.Join(dir, TraceFile))
		if err != nil {
			s.stopCPU()
			return nil, fmt.Errorf("create trace file: %w", err)
		}
		if err := trace.Start(tf); err != nil {
			_ = tf.Close()
			s.stopCPU()
			return nil, fmt.Errorf("start trace: %w", err)
		}
		s.traceFile = tf
	}

	return s, nil
}

// Dir returns the session directory.
func (s *Session) Dir() string {
	return s.dir
}

// Stop ends CPU profiling and tracing, then snapshots the heap and
// goroutine state. Calling Stop again is a no-op.
func (s *Session) Stop() error {
	if s.cpuFile == nil && s.traceFile == nil {
		return nil
	}

	s.stopCPU()

	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}

	if err := WriteHeap(filepath.Join(s.dir, HeapProfile)); err != nil {
		return err
	}
	return WriteGoroutine(filepath.Join(s.dir, GoroutineProfile))
}

func (s *Session) stopCPU() {
	if s.cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	_ = s.cpuFile.Close()
	s.cpuFile = nil
}

// WriteHeap writes a point-in-time heap profile. A GC runs first so the
// snapshot reflects live objects rather than garbage.
func WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}

// WriteGoroutine writes stack traces of all current goroutines.
func WriteGoroutine(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create goroutine profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := pprof.Lookup("goroutine").WriteTo(f, 1); err != nil {
		return fmt.Errorf("write goroutine profile: %w", err)
	}
	return nil
}
