package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/output"
	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

func parseStrategy(s string) (syncengine.Strategy, error) {
	switch strings.ToLower(s) {
	case "client", "client_wins":
		return syncengine.ClientWins, nil
	case "server", "server_wins":
		return syncengine.ServerWins, nil
	case "lww", "last_write_wins":
		return syncengine.LastWriteWins, nil
	case "merge":
		return syncengine.Merge, nil
	case "manual":
		return syncengine.Manual, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (use client, server, lww, merge, or manual)", s)
	}
}

var resolveCmd = &cobra.Command{
	Use:     "resolve <conflict-id>",
	Short:   "Resolve a sync conflict",
	GroupID: "sync",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategyStr, _ := cmd.Flags().GetString("strategy")
		payloadStr, _ := cmd.Flags().GetString("payload")

		var override *syncengine.Strategy
		if strategyStr != "" {
			s, err := parseStrategy(strategyStr)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			override = &s
		}

		// --payload @file reads the resolved document from disk.
		var manual json.RawMessage
		if payloadStr != "" {
			raw := []byte(payloadStr)
			if strings.HasPrefix(payloadStr, "@") {
				var err error
				raw, err = os.ReadFile(payloadStr[1:])
				if err != nil {
					output.Error("read payload: %v", err)
					return err
				}
			}
			if !json.Valid(raw) {
				output.Error("payload is not valid JSON")
				return fmt.Errorf("invalid payload")
			}
			manual = raw
		}

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if err := a.Engine.ResolveConflict(args[0], override, manual); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Conflict %s resolved.", args[0])
		if remaining := len(a.Engine.GetConflicts()); remaining > 0 {
			output.Info("%d conflict(s) remaining.", remaining)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("strategy", "", "Override the recorded strategy (client, server, lww, merge, manual)")
	resolveCmd.Flags().String("payload", "", "Resolved JSON document for manual resolution (or @file)")
}
