package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/nadim/fieldsync/internal/syncclient"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.Err != nil {
		return m.renderError()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	// Calculate panel heights (3 panels + footer)
	availableHeight := m.Height - 3
	panelHeight := availableHeight / 3

	overview := m.renderOverviewPanel(panelHeight)
	batches := m.renderBatchesPanel(panelHeight)
	appeals := m.renderAppealsPanel(panelHeight)

	panels := lipgloss.JoinVertical(lipgloss.Left,
		overview,
		batches,
		appeals,
	)

	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, panels, footer)
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder

	s.WriteString("fieldsync monitor (resize for full view)\n\n")

	if m.Status != nil {
		s.WriteString(fmt.Sprintf("Batches: %d\n", m.Status.Metrics.BatchesProcessed))
		s.WriteString(fmt.Sprintf("Accepted: %d | Failed: %d | Conflicts: %d\n",
			m.Status.Metrics.ItemsAccepted,
			m.Status.Metrics.ItemsFailed,
			m.Status.Metrics.ConflictsResolved))
	}
	s.WriteString(fmt.Sprintf("Pending appeals: %d\n", len(m.Appeals)))

	s.WriteString("\nq:quit r:refresh ?:help")

	return s.String()
}

// renderError renders an error message
func (m Model) renderError() string {
	return fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.Err)
}

// renderOverviewPanel renders the server overview panel (Panel 1)
func (m Model) renderOverviewPanel(height int) string {
	var content strings.Builder

	if m.Status == nil {
		content.WriteString(subtleStyle.Render("Waiting for first refresh"))
		return m.wrapPanel("SERVER", content.String(), height, PanelOverview)
	}

	mt := m.Status.Metrics
	content.WriteString(fmt.Sprintf("uptime %s   requests %d   errors %d/%d (server/client)\n",
		formatUptime(mt.UptimeSeconds), mt.Requests, mt.ServerErrors, mt.ClientErrors))
	content.WriteString(fmt.Sprintf("batches %d   accepted %d   failed %d   conflicts %d   appeals %d\n",
		mt.BatchesProcessed, mt.ItemsAccepted, mt.ItemsFailed, mt.ConflictsResolved, mt.AppealsSubmitted))
	content.WriteString(subtleStyle.Render(fmt.Sprintf("active zones: %d", m.Status.ZoneCount)))
	content.WriteString("\n")

	if len(m.Status.EntityCounts) > 0 {
		content.WriteString(sectionHeader.Render("ENTITIES:"))
		content.WriteString("\n")
		keys := make([]string, 0, len(m.Status.EntityCounts))
		for k := range m.Status.EntityCounts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			kind, state, _ := strings.Cut(k, "/")
			content.WriteString(fmt.Sprintf("  %-12s %s %d\n", kind, formatState(state), m.Status.EntityCounts[k]))
		}
	}

	return m.wrapPanel("SERVER", content.String(), height, PanelOverview)
}

// renderBatchesPanel renders the sync batch history panel (Panel 2)
func (m Model) renderBatchesPanel(height int) string {
	var content strings.Builder

	title := "SYNC BATCHES"
	if v := m.Filter.Value(); v != "" {
		title = fmt.Sprintf("SYNC BATCHES (device=%s)", v)
	}

	if m.Filtering {
		content.WriteString("/" + m.Filter.View())
		content.WriteString("\n")
	}

	if len(m.Batches) == 0 {
		content.WriteString(subtleStyle.Render("No batches received"))
	} else {
		offset := m.ScrollOffset[PanelBatches]
		if offset >= len(m.Batches) {
			offset = len(m.Batches) - 1
		}
		visible := m.visibleItems(len(m.Batches), offset, height-2)

		for i := offset; i < offset+visible && i < len(m.Batches); i++ {
			content.WriteString(m.formatBatchLine(m.Batches[i]))
			content.WriteString("\n")
		}
	}

	return m.wrapPanel(title, content.String(), height, PanelBatches)
}

// renderAppealsPanel renders the pending appeals panel (Panel 3)
func (m Model) renderAppealsPanel(height int) string {
	var content strings.Builder

	if len(m.Appeals) == 0 {
		content.WriteString(subtleStyle.Render("No pending appeals"))
	} else {
		offset := m.ScrollOffset[PanelAppeals]
		if offset >= len(m.Appeals) {
			offset = len(m.Appeals) - 1
		}
		visible := m.visibleItems(len(m.Appeals), offset, height-2)

		for i := offset; i < offset+visible && i < len(m.Appeals); i++ {
			content.WriteString(m.formatAppealLine(m.Appeals[i]))
			content.WriteString("\n")
		}
	}

	return m.wrapPanel("PENDING APPEALS", content.String(), height, PanelAppeals)
}

// renderFooter renders the footer with key bindings and refresh time
func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit  tab:switch  j/k:scroll  /:filter  r:refresh  ?:help")

	appealAlert := ""
	if len(m.Appeals) > 0 {
		appealAlert = appealAlertStyle.Render(fmt.Sprintf(" [%d APPEALS] ", len(m.Appeals)))
	}

	refresh := timestampStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(appealAlert) - lipgloss.Width(refresh) - 2
	if padding < 0 {
		padding = 0
	}

	return fmt.Sprintf(" %s%s%s%s", keys, strings.Repeat(" ", padding), appealAlert, refresh)
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	help := `
FIELDSYNC MONITOR - Key Bindings

NAVIGATION:
  Tab / Shift+Tab   Switch between panels
  1 / 2 / 3         Jump to panel
  j / k, ↑ / ↓      Scroll active panel

FILTER:
  /                 Filter batches by device ID
  Enter             Apply filter
  Esc               Clear filter

ACTIONS:
  r                 Force refresh
  q / Ctrl+C        Quit

Press ? to close help
`
	return helpStyle.Render(help)
}

// wrapPanel wraps content in a panel with title and border
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	titleStr := panelTitleStyle.Render(title)

	contentWidth := m.Width - 4

	lines := strings.Split(content, "\n")
	contentHeight := height - 3

	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}

	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	body := strings.Join(lines, "\n")

	inner := lipgloss.JoinVertical(lipgloss.Left, titleStr, body)

	return style.Width(m.Width - 2).Render(inner)
}

// formatBatchLine formats a single batch record for the history panel
func (m Model) formatBatchLine(b syncclient.BatchRecord) string {
	badge := formatBatchBadge(b.FailureCount)
	ts := timestampStyle.Render(shortTimestamp(b.ReceivedAt))
	device := subtleStyle.Render(ansi.Truncate(b.DeviceID, 16, "…"))
	counts := fmt.Sprintf("%d items, %d ok", b.TotalItems, b.SuccessCount)
	if b.FailureCount > 0 {
		counts += warnStyle.Render(fmt.Sprintf(", %d failed", b.FailureCount))
	}
	return fmt.Sprintf("%s %s %s %s", ts, badge, device, counts)
}

// formatAppealLine formats a single appeal for the appeals panel
func (m Model) formatAppealLine(a syncclient.Appeal) string {
	ts := timestampStyle.Render(shortTimestamp(a.SubmittedAt))
	ref := titleStyle.Render(fmt.Sprintf("%s #%d", a.EntityKind, a.EntityID))
	worker := subtleStyle.Render(fmt.Sprintf("worker %d", a.WorkerID))
	text := ansi.Truncate(a.Explanation, m.Width-40, "…")
	return fmt.Sprintf("%s %s %s %s", ts, ref, worker, text)
}

// visibleItems calculates how many items can be shown given scroll offset and height
func (m Model) visibleItems(total, offset, height int) int {
	remaining := total - offset
	if remaining > height {
		return height
	}
	return remaining
}

// shortTimestamp trims a stored timestamp down to HH:MM for display.
// Stored timestamps are RFC 3339-ish strings; fall back to the raw value.
func shortTimestamp(ts string) string {
	if len(ts) >= 16 {
		return ts[11:16]
	}
	return ts
}

// formatUptime renders seconds as a compact human duration
func formatUptime(seconds float64) string {
	s := int(seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm", s/60)
	default:
		return fmt.Sprintf("%dh%dm", s/3600, (s%3600)/60)
	}
}
