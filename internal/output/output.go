// Package output provides styled terminal output helpers (success, error,
// warning, entity formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nadim/fieldsync/internal/syncclient"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	stateStyles  = map[string]lipgloss.Style{
		"pending":       lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"in_progress":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"completed":     lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		"approved":      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"auto_approved": lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"rejected":      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"cancelled":     lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		"reported":      lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"in_review":     lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		"resolved":      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"closed":        lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatState formats an entity state with color
func FormatState(s string) string {
	style, ok := stateStyles[s]
	if !ok {
		return fmt.Sprintf("[%s]", s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// StateBadge returns a state indicator with symbol
// e.g., "○ pending", "▶ in_progress", "✓ approved", "✗ rejected"
func StateBadge(state string) string {
	symbols := map[string]string{
		"pending":       "○",
		"reported":      "○",
		"in_progress":   "▶",
		"in_review":     "◎",
		"completed":     "◎",
		"approved":      "✓",
		"auto_approved": "✓",
		"resolved":      "✓",
		"rejected":      "✗",
		"cancelled":     "·",
		"closed":        "·",
	}
	symbol, ok := symbols[state]
	if !ok {
		symbol = "?"
	}
	style, hasStyle := stateStyles[state]
	if hasStyle {
		return style.Render(fmt.Sprintf("%s %s", symbol, state))
	}
	return fmt.Sprintf("%s %s", symbol, state)
}

// FormatEntityShort formats an entity in short list format
func FormatEntityShort(e *syncclient.Entity) string {
	var parts []string
	parts = append(parts, titleStyle.Render(fmt.Sprintf("#%d", e.ServerID)))
	if title, ok := e.Payload["title"].(string); ok && title != "" {
		parts = append(parts, title)
	} else if e.ClientID != "" {
		parts = append(parts, subtleStyle.Render(e.ClientID))
	}
	if e.ZoneID != 0 {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("zone %d", e.ZoneID)))
	}
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("v%d", e.Version)))
	parts = append(parts, FormatState(e.State))
	return strings.Join(parts, "  ")
}

// FormatAppealShort formats an appeal in short list format
func FormatAppealShort(a *syncclient.Appeal) string {
	var parts []string
	parts = append(parts, titleStyle.Render(fmt.Sprintf("appeal %d", a.ID)))
	parts = append(parts, fmt.Sprintf("%s #%d", a.EntityKind, a.EntityID))
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("worker %d", a.WorkerID)))
	parts = append(parts, FormatState(a.Status))
	return strings.Join(parts, "  ")
}

// FormatZoneShort formats a zone in short list format
func FormatZoneShort(z *syncclient.Zone) string {
	var parts []string
	parts = append(parts, titleStyle.Render(z.Code))
	parts = append(parts, z.Name)
	if z.District != "" {
		parts = append(parts, subtleStyle.Render(z.District))
	}
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("%d vertices, v%d", len(z.Ring), z.Version)))
	if z.Active {
		parts = append(parts, successStyle.Render("[active]"))
	} else {
		parts = append(parts, errorStyle.Render("[inactive]"))
	}
	return strings.Join(parts, "  ")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nAPPEALS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
