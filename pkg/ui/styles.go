package ui

import "github.com/charmbracelet/lipgloss"

var (
	// FocusedStyle is used for the currently selected menu item or form field.
	FocusedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	// BlurredStyle is used for unselected items.
	BlurredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// TitleStyle is used for screen headers.
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true).
			MarginLeft(2)

	// HelpStyle is used for the key hints at the bottom of each screen.
	HelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// MessageStyle is used for transient status messages.
	MessageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	// CardStyle renders a black-suited card face.
	CardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("255")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.RoundedBorder())

	// RedCardStyle renders a red-suited card face.
	RedCardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("255")).
			Foreground(lipgloss.Color("196")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.RoundedBorder())

	// PlayerBoxStyle frames an opponent summary.
	PlayerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	// TurnPlayerStyle frames the player whose turn it is.
	TurnPlayerStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("46")).
			Padding(0, 1).
			Margin(0, 1)

	// SelfPlayerStyle frames the local player's own summary.
	SelfPlayerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1).
			Margin(0, 1)
)
