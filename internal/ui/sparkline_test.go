package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparkline_Empty(t *testing.T) {
	s := NewSparkline(10)

	assert.Empty(t, s.Render())
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0.0, s.Max())
}

func TestSparkline_RendersLowToHigh(t *testing.T) {
	// Given samples spanning the range
	s := NewSparkline(10)
	s.Add(0)
	s.Add(50)
	s.Add(100)

	// When rendering
	out := []rune(s.Render())

	// Then the strip rises from the lowest to the highest block
	assert.Len(t, out, 3)
	assert.Equal(t, SparklineChars[0], out[0])
	assert.Equal(t, SparklineChars[len(SparklineChars)-1], out[2])
}

func TestSparkline_UniformSamples(t *testing.T) {
	s := NewSparkline(10)
	s.Add(5)
	s.Add(5)
	s.Add(5)

	// Equal samples all map to the top block
	top := string(SparklineChars[len(SparklineChars)-1])
	assert.Equal(t, strings.Repeat(top, 3), s.Render())
}

func TestSparkline_EvictsOldest(t *testing.T) {
	// Given a full sparkline
	s := NewSparkline(3)
	s.Add(1)
	s.Add(2)
	s.Add(3)

	// When adding one more
	s.Add(4)

	// Then the window slides
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 4.0, s.Max())
}

func TestSparkline_ClampsNegative(t *testing.T) {
	s := NewSparkline(5)
	s.Add(-10)
	s.Add(10)

	out := []rune(s.Render())
	assert.Equal(t, SparklineChars[0], out[0])
}

func TestSparkline_DefaultLength(t *testing.T) {
	s := NewSparkline(0)

	for i := 0; i < 100; i++ {
		s.Add(float64(i))
	}

	assert.Equal(t, defaultSparklineLen, s.Count())
}
