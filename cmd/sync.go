package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/output"
	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Push queued changes to the server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		statusOnly, _ := cmd.Flags().GetBool("status")

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if statusOnly {
			fmt.Printf("State: %s  Pending: %d  Conflicts: %d\n",
				output.SyncState(a.Engine.State()),
				a.Engine.PendingCount(),
				len(a.Engine.GetConflicts()))
			return nil
		}

		if !a.Prober.CheckNow() {
			output.Error("server unreachable at %s", a.Client.HealthURL())
			return fmt.Errorf("offline")
		}

		pending := a.Engine.PendingCount()
		if pending == 0 && len(a.Engine.GetConflicts()) == 0 {
			output.Info("Nothing to sync.")
			return nil
		}

		// Buffered so the engine's synchronous notify never blocks on us.
		events := make(chan syncengine.StatusEvent, 64)
		unsub := a.Engine.Subscribe(func(ev syncengine.StatusEvent) {
			select {
			case events <- ev:
			default:
			}
		})
		defer unsub()

		output.Info("Syncing %d pending operation(s)...", pending)
		a.Engine.Sync()

		deadline := time.After(timeout)
		for {
			// The connect edge may have drained the queue before we
			// subscribed; don't wait on an event that already fired.
			if a.Engine.State() == syncengine.Idle && a.Engine.PendingCount() == 0 {
				output.Success("Sync complete. 0 operation(s) remaining.")
				return nil
			}
			select {
			case ev := <-events:
				if ev.Failure != nil {
					output.Warning("dropped %s %s after %d attempts: %s",
						ev.Failure.Operation.Kind,
						ev.Failure.Operation.EntityID,
						ev.Failure.Operation.Attempts,
						ev.Failure.Reason)
				}
				switch ev.State {
				case syncengine.Syncing:
					continue
				case syncengine.Idle:
					output.Success("Sync complete. %d operation(s) remaining.", ev.Pending)
					return nil
				case syncengine.InConflict:
					output.Warning("Sync finished with %d conflict(s) (run: focusflow conflicts)", ev.Conflicts)
					return nil
				case syncengine.ErrState:
					output.Error("sync failed, %d operation(s) still pending (will retry)", ev.Pending)
					return fmt.Errorf("sync failed")
				}
			case <-deadline:
				output.Error("sync timed out after %s", timeout)
				return fmt.Errorf("sync timed out")
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Duration("timeout", 2*time.Minute, "Give up waiting after this long")
	syncCmd.Flags().Bool("status", false, "Show queue state without syncing")
}
