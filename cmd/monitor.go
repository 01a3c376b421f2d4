package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/output"
	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
	"github.com/MMR-MINGriyue/focusflow/pkg/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI dashboard for the sync engine",
	Long: `Launch a live-updating TUI dashboard showing:
- Network status and sync engine state
- Pending operation queue depth and dropped operations
- Unresolved conflicts
- Snapshot and backup health

Key bindings:
  s   Trigger a sync round
  r   Force refresh
  ?   Toggle help
  q   Quit`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		model := monitor.NewModel(a.Engine, a.Persist, a.Monitor, interval, version)

		p := tea.NewProgram(model, tea.WithAltScreen())

		// Push engine transitions into the program so the dashboard
		// reacts between ticks.
		unsub := a.Engine.Subscribe(func(ev syncengine.StatusEvent) {
			go p.Send(monitor.StatusMsg(ev))
		})
		defer unsub()

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval (default 2s)")
}
