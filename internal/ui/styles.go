package ui

import "github.com/charmbracelet/lipgloss"

var (
	idleColor     = lipgloss.Color("#10B981")
	fetchingColor = lipgloss.Color("#3B82F6")
	errorColor    = lipgloss.Color("#EF4444")
	mutedColor    = lipgloss.Color("#6B7280")
	textColor     = lipgloss.Color("#F9FAFB")
	primaryColor  = lipgloss.Color("#7C3AED")
)

var (
	ballStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Align(lipgloss.Center)

	titleStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	formTitleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			MarginBottom(1)

	focusedLabelStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)
