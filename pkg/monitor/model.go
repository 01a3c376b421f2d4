// Package monitor is the live TUI dashboard for observing the sync
// engine: network status, queue depth, conflicts, and snapshot health.
package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MMR-MINGriyue/focusflow/internal/netmon"
	"github.com/MMR-MINGriyue/focusflow/internal/persist"
	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 12

// TickMsg triggers a data refresh
type TickMsg time.Time

// StatusMsg is a pushed engine status event; it forces an immediate
// data refresh so transitions render without waiting for the tick.
type StatusMsg syncengine.StatusEvent

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Online     bool
	State      syncengine.State
	Pending    int
	Conflicts  []syncengine.Conflict
	Failures   []syncengine.Failure
	SnapshotAt time.Time
	Schema     string
	Backups    int
	Timestamp  time.Time
}

// Model is the main Bubble Tea model for the monitor TUI
type Model struct {
	Engine  *syncengine.Manager
	Persist *persist.Manager
	Monitor *netmon.Monitor

	Width  int
	Height int

	Online     bool
	State      syncengine.State
	Pending    int
	Conflicts  []syncengine.Conflict
	Failures   []syncengine.Failure
	SnapshotAt time.Time
	Schema     string
	Backups    int

	ShowHelp    bool
	LastRefresh time.Time
	Err         error

	Spinner         spinner.Model
	RefreshInterval time.Duration
	Version         string
}

// NewModel creates a new monitor model
func NewModel(engine *syncengine.Manager, pm *persist.Manager, mon *netmon.Monitor, interval time.Duration, version string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		Engine:          engine,
		Persist:         pm,
		Monitor:         mon,
		Spinner:         sp,
		RefreshInterval: interval,
		Version:         version,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
		m.Spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case StatusMsg:
		m.State = msg.State
		m.Pending = msg.Pending
		return m, m.fetchData()

	case RefreshDataMsg:
		m.Online = msg.Online
		m.State = msg.State
		m.Pending = msg.Pending
		m.Conflicts = msg.Conflicts
		m.Failures = msg.Failures
		m.SnapshotAt = msg.SnapshotAt
		m.Schema = msg.Schema
		m.Backups = msg.Backups
		m.LastRefresh = msg.Timestamp
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "s":
		// Kick a sync round; the next tick picks up the result.
		go m.Engine.Sync()
		return m, m.fetchData()

	case "r":
		return m, m.fetchData()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that reads engine state and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		data := RefreshDataMsg{
			Online:    m.Monitor.Status(),
			State:     m.Engine.State(),
			Pending:   m.Engine.PendingCount(),
			Conflicts: m.Engine.GetConflicts(),
			Failures:  m.Engine.LastFailures(),
			Timestamp: time.Now(),
		}
		if snap, err := m.Persist.Load(); err == nil && snap != nil {
			data.SnapshotAt = snap.SavedAt
			data.Schema = snap.SchemaVersion
		}
		if backups, err := m.Persist.Backups(); err == nil {
			data.Backups = len(backups)
		}
		return data
	}
}
