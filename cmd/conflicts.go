package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/output"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Short:   "Show unresolved sync conflicts",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		conflicts := a.Engine.GetConflicts()
		if asJSON {
			return output.JSON(conflicts)
		}

		if len(conflicts) == 0 {
			fmt.Println("No unresolved conflicts.")
			return nil
		}

		output.Title("Unresolved conflicts:")
		fmt.Printf("  %-36s %-9s %-20s %-16s %s\n", "ID", "TYPE", "ENTITY", "STRATEGY", "LOCAL/REMOTE")
		for _, c := range conflicts {
			fmt.Printf("  %-36s %-9s %-20s %-16s %s / %s\n",
				c.ID,
				c.EntityType,
				c.EntityID,
				c.Strategy,
				c.LocalTimestamp.Format("15:04:05"),
				c.RemoteTimestamp.Format("15:04:05"),
			)
		}
		output.Subtle("Resolve with: focusflow resolve <id> [--strategy ...]")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
	conflictsCmd.Flags().Bool("json", false, "Output as JSON")
}
