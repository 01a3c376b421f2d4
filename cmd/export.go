package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/output"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	Short:   "Export state and backups to a transfer file",
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		blob, err := a.Persist.ExportAll()
		if err != nil {
			output.Error("export: %v", err)
			return err
		}

		data, err := json.MarshalIndent(blob, "", "  ")
		if err != nil {
			output.Error("encode export: %v", err)
			return err
		}

		if args[0] == "-" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(args[0], data, 0600); err != nil {
			output.Error("write %s: %v", args[0], err)
			return err
		}

		n := 0
		if blob.Data != nil {
			n = 1
		}
		output.Success("Exported %d snapshot(s) and %d backup(s) to %s", n, len(blob.Backups), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
