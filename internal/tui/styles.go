package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("39")
	colorLow     = lipgloss.Color("42")
	colorMedium  = lipgloss.Color("220")
	colorHigh    = lipgloss.Color("196")
	colorDim     = lipgloss.Color("241")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(colorDim)

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(colorPrimary).
			Underline(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// levelStyle colors a risk level or severity.
func levelStyle(level string) lipgloss.Style {
	switch level {
	case "low":
		return lipgloss.NewStyle().Foreground(colorLow)
	case "medium":
		return lipgloss.NewStyle().Foreground(colorMedium)
	case "high", "critical":
		return lipgloss.NewStyle().Bold(true).Foreground(colorHigh)
	}
	return lipgloss.NewStyle()
}
