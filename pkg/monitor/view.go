package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

func (m Model) renderView() string {
	if m.Width > 0 && (m.Width < MinWidth || m.Height < MinHeight) {
		return subtleStyle.Render(fmt.Sprintf("Terminal too small (need %dx%d)", MinWidth, MinHeight))
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderEnginePanel())
	b.WriteString("\n")
	b.WriteString(m.renderConflictsPanel())
	b.WriteString("\n")
	if m.ShowHelp {
		b.WriteString(m.renderHelp())
	} else {
		b.WriteString(helpStyle.Render("s sync  r refresh  ? help  q quit"))
	}
	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("focusflow monitor")
	if m.Version != "" {
		title += " " + subtleStyle.Render(m.Version)
	}

	net := offlineStyle.Render("● offline")
	if m.Online {
		net = onlineStyle.Render("● online")
	}

	refreshed := ""
	if !m.LastRefresh.IsZero() {
		refreshed = timestampStyle.Render("refreshed " + m.LastRefresh.Format("15:04:05"))
	}

	left := title + "  " + net
	if m.Width <= 0 {
		return left + "  " + refreshed
	}
	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(refreshed)
	if gap < 2 {
		gap = 2
	}
	return left + strings.Repeat(" ", gap) + refreshed
}

func (m Model) renderEnginePanel() string {
	var rows []string

	state := stateStyles[m.State].Render(string(m.State))
	if m.State == syncengine.Syncing {
		state = m.Spinner.View() + " " + state
	}
	rows = append(rows, "State:     "+state)
	rows = append(rows, fmt.Sprintf("Pending:   %d operation(s)", m.Pending))

	if len(m.Failures) > 0 {
		rows = append(rows, failureBadge.Render(fmt.Sprintf("Failures:  %d dropped", len(m.Failures))))
	}

	if m.SnapshotAt.IsZero() {
		rows = append(rows, subtleStyle.Render("Snapshot:  none"))
	} else {
		rows = append(rows, fmt.Sprintf("Snapshot:  schema %s, saved %s", m.Schema, relTime(m.SnapshotAt)))
	}
	rows = append(rows, fmt.Sprintf("Backups:   %d", m.Backups))

	return panelStyle.Width(m.panelWidth()).Render(
		panelTitleStyle.Render("Engine") + "\n" + strings.Join(rows, "\n"))
}

func (m Model) renderConflictsPanel() string {
	var rows []string
	if len(m.Conflicts) == 0 {
		rows = append(rows, subtleStyle.Render("No unresolved conflicts."))
	}
	for i, c := range m.Conflicts {
		if i >= 8 {
			rows = append(rows, subtleStyle.Render(fmt.Sprintf("... and %d more", len(m.Conflicts)-i)))
			break
		}
		rows = append(rows, conflictBadge.Render("! ")+fmt.Sprintf("%s %s  %s  local %s / remote %s",
			c.EntityType, c.EntityID, c.Strategy,
			c.LocalTimestamp.Format("15:04:05"),
			c.RemoteTimestamp.Format("15:04:05")))
	}
	return panelStyle.Width(m.panelWidth()).Render(
		panelTitleStyle.Render(fmt.Sprintf("Conflicts (%d)", len(m.Conflicts))) + "\n" + strings.Join(rows, "\n"))
}

func (m Model) renderHelp() string {
	lines := []string{
		"s      Trigger a sync round",
		"r      Force refresh",
		"?      Toggle help",
		"q      Quit",
	}
	return helpStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) panelWidth() int {
	if m.Width <= 0 {
		return MinWidth
	}
	// account for panel border and padding
	return m.Width - 4
}

func relTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
