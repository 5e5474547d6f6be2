package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette. Sky blue accent on the standard 256-color table.
const (
	ColorAccent    = "75"  // Sky blue, primary accent
	ColorAccentDim = "67"  // Muted blue for secondary accents
	ColorWhite     = "255" // Bright white for emphasis
	ColorGray      = "245" // Medium gray for dim text
	ColorDarkGray  = "238" // Dark gray for borders
	ColorRed       = "196" // Errors
	ColorYellow    = "220" // Warnings
	ColorGreen     = "114" // Success
)

// Styles holds the lipgloss styles used across renderers.
type Styles struct {
	// Header is the bold accent line at the top of a view.
	Header lipgloss.Style

	// Success renders completion lines.
	Success lipgloss.Style

	// Warning renders warning lines.
	Warning lipgloss.Style

	// Error renders error lines.
	Error lipgloss.Style

	// Dim renders secondary detail text.
	Dim lipgloss.Style

	// Label renders field labels in status output.
	Label lipgloss.Style

	// Path renders note paths in search results.
	Path lipgloss.Style

	// Score renders relevance scores.
	Score lipgloss.Style

	// Title renders section titles in search results.
	Title lipgloss.Style
}

// DefaultStyles returns the standard color styles.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorAccent)),

		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGreen)),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorYellow)),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorRed)),

		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)),

		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorAccentDim)),

		Path: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorAccent)),

		Score: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)),

		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorWhite)),
	}
}

// NoColorStyles returns styles with no color for NO_COLOR environments.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:  plain.Bold(true),
		Success: plain,
		Warning: plain,
		Error:   plain,
		Dim:     plain,
		Label:   plain,
		Path:    plain.Bold(true),
		Score:   plain,
		Title:   plain,
	}
}

// GetStyles returns the appropriate styles based on color support.
func GetStyles(noColor bool) Styles {
	if noColor || DetectNoColor() {
		return NoColorStyles()
	}
	return DefaultStyles()
}
