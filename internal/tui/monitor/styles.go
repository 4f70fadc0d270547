package monitor

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// Base colors
	primaryColor   = lipgloss.Color("212")
	secondaryColor = lipgloss.Color("141")
	mutedColor     = lipgloss.Color("241")
	successColor   = lipgloss.Color("42")
	warningColor   = lipgloss.Color("214")
	errorColor     = lipgloss.Color("196")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	okStyle        = lipgloss.NewStyle().Foreground(successColor)
	warnStyle      = lipgloss.NewStyle().Foreground(warningColor)

	// Entity state styles
	stateStyles = map[string]lipgloss.Style{
		"pending":       lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"in_progress":   lipgloss.NewStyle().Foreground(warningColor),
		"completed":     lipgloss.NewStyle().Foreground(secondaryColor),
		"approved":      lipgloss.NewStyle().Foreground(successColor),
		"auto_approved": lipgloss.NewStyle().Foreground(successColor),
		"rejected":      lipgloss.NewStyle().Foreground(errorColor),
		"cancelled":     lipgloss.NewStyle().Foreground(mutedColor),
		"reported":      lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"in_review":     lipgloss.NewStyle().Foreground(secondaryColor),
		"resolved":      lipgloss.NewStyle().Foreground(successColor),
		"closed":        lipgloss.NewStyle().Foreground(mutedColor),
	}

	// Prominent style for the pending-appeals alert in the footer
	appealAlertStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("141"))

	// Section headers
	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			MarginTop(1)
)

// formatState renders an entity state with color
func formatState(s string) string {
	style, ok := stateStyles[s]
	if !ok {
		return s
	}
	return style.Render(s)
}

// formatBatchBadge renders a pass/fail badge for a batch record
func formatBatchBadge(failures int) string {
	if failures > 0 {
		return errorStyle.Render("[FAIL]")
	}
	return okStyle.Render("[ OK ]")
}
