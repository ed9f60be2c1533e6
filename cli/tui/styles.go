// Package tui is the interactive Mk0 device shell.
//
// The shell shows host and device log output in a scrolling viewport and
// reads commands from a prompt below it. Command interpretation lives in
// Shell so it can be driven without a terminal.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

var (
	// TitleStyle renders the status bar.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	// PromptStyle renders the input prompt.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)

	// HelpStyle renders help text and hints.
	HelpStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

func styleFor(kind outputKind) lipgloss.Style {
	switch kind {
	case outputError:
		return ErrorStyle
	case outputWarning:
		return WarningStyle
	case outputHelp:
		return HelpStyle
	default:
		return lipgloss.NewStyle()
	}
}
