package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/output"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show engine state, queue depth, and last snapshot",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		online := a.Prober.CheckNow()

		snap, err := a.Persist.Load()
		if err != nil {
			output.Error("load state: %v", err)
			return err
		}
		backups, err := a.Persist.Backups()
		if err != nil {
			output.Error("read backups: %v", err)
			return err
		}

		if asJSON {
			var savedAt *time.Time
			schemaVersion := ""
			if snap != nil {
				savedAt = &snap.SavedAt
				schemaVersion = snap.SchemaVersion
			}
			return output.JSON(map[string]any{
				"online":         online,
				"server":         cfg.Server.URL,
				"state":          a.Engine.State(),
				"pending":        a.Engine.PendingCount(),
				"conflicts":      len(a.Engine.GetConflicts()),
				"failures":       len(a.Engine.LastFailures()),
				"saved_at":       savedAt,
				"schema_version": schemaVersion,
				"backups":        len(backups),
			})
		}

		output.Title("focusflow %s", version)
		fmt.Printf("  Server:    %s (%s)\n", cfg.Server.URL, output.Online(online))
		fmt.Printf("  State:     %s\n", output.SyncState(a.Engine.State()))
		fmt.Printf("  Pending:   %d operation(s)\n", a.Engine.PendingCount())
		fmt.Printf("  Conflicts: %d\n", len(a.Engine.GetConflicts()))
		if n := len(a.Engine.LastFailures()); n > 0 {
			fmt.Printf("  Failures:  %d dropped operation(s)\n", n)
		}
		if snap == nil {
			output.Subtle("  No saved state yet.")
		} else {
			fmt.Printf("  Snapshot:  schema %s, saved %s\n", snap.SchemaVersion, output.RelativeTime(snap.SavedAt))
		}
		fmt.Printf("  Backups:   %d\n", len(backups))

		report := a.Persist.LastLoadReport()
		if report.UsedBackup {
			output.Warning("state was restored from backup %s", report.BackupID)
		}
		if report.MigrationGap {
			output.Warning("migration chain could not reach the target version from %s", report.FromVersion)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
