// Package ui styles contains shared styling definitions.
// Centralized styles ensure visual consistency across all views.
package ui

import "github.com/charmbracelet/lipgloss"

// Color palette - using a cohesive purple/violet theme
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Violet
	ColorSecondary = lipgloss.Color("#A78BFA") // Light violet
	ColorAccent    = lipgloss.Color("#34D399") // Emerald (success)
	ColorWarning   = lipgloss.Color("#FBBF24") // Amber
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorMuted     = lipgloss.Color("#626262") // Gray
	ColorText      = lipgloss.Color("#FAFAFA") // White
	ColorSubtle    = lipgloss.Color("#A1A1AA") // Zinc
)

// Shared styles
var (
	// Screen title bars
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 1)

	// Help text at the bottom of each view
	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// Secondary information: loading hints, empty lists
	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	// Links the user is asked to open
	LinkStyle = lipgloss.NewStyle().
			Foreground(ColorAccent)

	// Transient warnings, shown once on the account list
	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	// Success message style
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	// Box around the device sign-in code
	CodeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(1, 2)
)
