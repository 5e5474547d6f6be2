package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles(t *testing.T) {
	s := DefaultStyles()

	assert.True(t, s.Header.GetBold())
	assert.True(t, s.Path.GetBold())
	assert.Equal(t, lipgloss.Color(ColorGreen), s.Success.GetForeground())
	assert.Equal(t, lipgloss.Color(ColorYellow), s.Warning.GetForeground())
	assert.Equal(t, lipgloss.Color(ColorRed), s.Error.GetForeground())
	assert.Equal(t, lipgloss.Color(ColorGray), s.Dim.GetForeground())
}

func TestNoColorStyles(t *testing.T) {
	s := NoColorStyles()

	// Structure survives, color does not
	assert.True(t, s.Header.GetBold())
	assert.Equal(t, lipgloss.NoColor{}, s.Success.GetForeground())
	assert.Equal(t, lipgloss.NoColor{}, s.Error.GetForeground())
}

func TestGetStyles_NoColorFlag(t *testing.T) {
	s := GetStyles(true)

	assert.Equal(t, lipgloss.NoColor{}, s.Success.GetForeground())
}

func TestGetStyles_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	s := GetStyles(false)

	assert.Equal(t, lipgloss.NoColor{}, s.Success.GetForeground())
}
