package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/output"
	"github.com/MMR-MINGriyue/focusflow/internal/persist"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import state from a transfer file",
	Long: `Import state from a file produced by export. The current state is
snapshotted into the backup ring before it is replaced, so a bad
import can be recovered.`,
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readFileOrStdin(args[0])
		if err != nil {
			output.Error("read %s: %v", args[0], err)
			return err
		}

		var blob persist.ExportBlob
		if err := json.Unmarshal(data, &blob); err != nil {
			output.Error("parse transfer file: %v", err)
			return err
		}

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if err := a.Persist.ImportAll(&blob); err != nil {
			output.Error("import: %v", err)
			return err
		}

		output.Success("Imported state with %d backup(s).", len(blob.Backups))
		return nil
	},
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func init() {
	rootCmd.AddCommand(importCmd)
}
