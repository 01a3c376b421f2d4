package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	onlineStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	// Sync state styles
	stateStyles = map[syncengine.State]lipgloss.Style{
		syncengine.Idle:       lipgloss.NewStyle().Foreground(successColor),
		syncengine.Syncing:    lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		syncengine.ErrState:   lipgloss.NewStyle().Foreground(errorColor),
		syncengine.InConflict: lipgloss.NewStyle().Foreground(warningColor),
	}

	conflictBadge = lipgloss.NewStyle().Foreground(warningColor)
	failureBadge  = lipgloss.NewStyle().Foreground(errorColor)
)
