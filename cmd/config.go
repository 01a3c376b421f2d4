package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MMR-MINGriyue/focusflow/internal/config"
	"github.com/MMR-MINGriyue/focusflow/internal/output"
)

// validConfigKeys lists the supported config keys for set.
var validConfigKeys = []string{
	"storage",
	"server.url",
	"server.api_key",
	"engine.schema_version",
	"engine.max_backups",
	"engine.compression",
	"engine.sync_interval",
	"engine.retry_interval",
	"engine.max_attempts",
	"engine.batch_size",
	"engine.conflict_resolution",
	"engine.auto_resolve",
	"engine.sync_on_connect",
}

func isValidConfigKey(key string) bool {
	for _, k := range validConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}

func parseBoolValue(val string) (bool, error) {
	switch strings.ToLower(val) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q (use true/false/1/0)", val)
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage focusflow configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]

		if !isValidConfigKey(key) {
			output.Error("unknown config key: %s", key)
			fmt.Println("Valid keys:", strings.Join(validConfigKeys, ", "))
			return fmt.Errorf("unknown config key: %s", key)
		}

		switch key {
		case "storage":
			if val != "sqlite" && val != "badger" {
				output.Error("storage must be sqlite or badger")
				return fmt.Errorf("invalid storage %q", val)
			}
			cfg.Storage = val
		case "server.url":
			cfg.Server.URL = val
		case "server.api_key":
			cfg.Server.APIKey = val
		case "engine.schema_version":
			cfg.Engine.SchemaVersion = val
		case "engine.max_backups":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				output.Error("max_backups must be a non-negative integer")
				return fmt.Errorf("invalid max_backups %q", val)
			}
			cfg.Engine.MaxBackups = intPtr(n)
		case "engine.compression":
			b, err := parseBoolValue(val)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Engine.Compression = boolPtr(b)
		case "engine.sync_interval", "engine.retry_interval":
			if _, err := time.ParseDuration(val); err != nil {
				output.Error("invalid duration %q: %v", val, err)
				return err
			}
			if key == "engine.sync_interval" {
				cfg.Engine.SyncInterval = val
			} else {
				cfg.Engine.RetryInterval = val
			}
		case "engine.max_attempts":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				output.Error("max_attempts must be a positive integer")
				return fmt.Errorf("invalid max_attempts %q", val)
			}
			cfg.Engine.MaxAttempts = intPtr(n)
		case "engine.batch_size":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				output.Error("batch_size must be a positive integer")
				return fmt.Errorf("invalid batch_size %q", val)
			}
			cfg.Engine.BatchSize = intPtr(n)
		case "engine.conflict_resolution":
			if _, err := parseStrategy(val); err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Engine.ConflictResolution = val
		case "engine.auto_resolve":
			b, err := parseBoolValue(val)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Engine.AutoResolve = boolPtr(b)
		case "engine.sync_on_connect":
			b, err := parseBoolValue(val)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Engine.SyncOnConnect = boolPtr(b)
		}

		if err := config.Save(cfgDir, cfg); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		output.Success("%s = %s", key, val)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(cfg)
		}

		output.Title("Configuration (%s)", cfgDir)
		fmt.Printf("  storage:                    %s\n", orDefault(cfg.Storage, "sqlite"))
		fmt.Printf("  server.url:                 %s\n", cfg.Server.URL)
		fmt.Printf("  server.api_key:             %s\n", maskKey(cfg.Server.APIKey))
		fmt.Printf("  device_id:                  %s\n", orDefault(cfg.DeviceID, "(unset)"))
		fmt.Printf("  engine.schema_version:      %s\n", cfg.Engine.SchemaVersionOrDefault())
		fmt.Printf("  engine.max_backups:         %d\n", cfg.Engine.MaxBackupsOrDefault())
		fmt.Printf("  engine.compression:         %t\n", cfg.Engine.CompressionOrDefault())
		fmt.Printf("  engine.sync_interval:       %s\n", cfg.Engine.SyncIntervalOrDefault())
		fmt.Printf("  engine.retry_interval:      %s\n", cfg.Engine.RetryIntervalOrDefault())
		fmt.Printf("  engine.max_attempts:        %d\n", cfg.Engine.MaxAttemptsOrDefault())
		fmt.Printf("  engine.batch_size:          %d\n", cfg.Engine.BatchSizeOrDefault())
		fmt.Printf("  engine.conflict_resolution: %s\n", defaultStrategy())
		fmt.Printf("  engine.auto_resolve:        %t\n", cfg.Engine.AutoResolveOrDefault())
		fmt.Printf("  engine.sync_on_connect:     %t\n", cfg.Engine.SyncOnConnectOrDefault())
		return nil
	},
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func maskKey(key string) string {
	if key == "" {
		return "(unset)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configShowCmd.Flags().Bool("json", false, "Output as JSON")
}
