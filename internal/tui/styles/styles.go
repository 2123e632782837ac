// Package styles defines shared lipgloss styles for the TUI.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#5FAFAF") // Teal accent
	secondaryColor = lipgloss.Color("#666666") // Gray for secondary text
	successColor   = lipgloss.Color("#87AF87") // Muted sage for success
	warningColor   = lipgloss.Color("#D7AF5F") // Amber for backoff waits
	errorColor     = lipgloss.Color("#AF5F5F") // Muted terracotta for errors

	// TitleStyle for headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// SubtleStyle for hints/help text
	SubtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// SelectedStyle for the active element
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// StatusBarStyle for bottom status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// BoxStyle for panel borders
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// lanePalette colors lane prefixes in the output panel.
var lanePalette = []lipgloss.Color{
	"#5FAFAF", "#AF87D7", "#D7AF5F", "#87AFD7", "#D787AF", "#87D7AF",
}

// LaneStyle returns a stable color for a lane name.
func LaneStyle(lane string) lipgloss.Style {
	var h uint32
	for i := 0; i < len(lane); i++ {
		h = h*31 + uint32(lane[i])
	}
	return lipgloss.NewStyle().Foreground(lanePalette[h%uint32(len(lanePalette))])
}
