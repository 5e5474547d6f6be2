package ui

import (
	"strings"
	"sync"
)

// SparklineChars are the block characters from lowest to highest.
var SparklineChars = []rune("▁▂▃▄▅▆▇█")

const defaultSparklineLen = 30

// Sparkline keeps a bounded history of samples and renders them as a
// unicode bar strip. Used for ingest throughput display.
type Sparkline struct {
	mu     sync.Mutex
	values []float64
	maxLen int
}

// NewSparkline creates a sparkline holding up to maxLen samples.
func NewSparkline(maxLen int) *Sparkline {
	if maxLen <= 0 {
		maxLen = defaultSparklineLen
	}
	return &Sparkline{
		values: make([]float64, 0, maxLen),
		maxLen: maxLen,
	}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value < 0 {
		value = 0
	}

	s.values = append(s.values, value)
	if len(s.values) > s.maxLen {
		s.values = s.values[1:]
	}
}

// Render returns the sparkline as a string, one rune per sample.
func (s *Sparkline) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.values) == 0 {
		return ""
	}

	max := s.values[0]
	for _, v := range s.values {
		if v > max {
			max = v
		}
	}

	var b strings.Builder
	for _, v := range s.values {
		idx := 0
		if max > 0 {
			idx = int(v / max * float64(len(SparklineChars)-1))
		}
		if idx < 0 {
			idx = 0
		}
		if idx >= len(SparklineChars) {
			idx = len(SparklineChars) - 1
		}
		b.WriteRune(SparklineChars[idx])
	}

	return b.String()
}

// Count returns the number of samples currently held.
func (s *Sparkline) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Max returns the largest sample in the current window.
func (s *Sparkline) Max() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max float64
	for _, v := range s.values {
		if v > max {
			max = v
		}
	}
	return max
}
