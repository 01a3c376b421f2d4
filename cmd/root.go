package cmd

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/MMR-MINGriyue/focusflow/internal/config"
	"github.com/MMR-MINGriyue/focusflow/internal/crypto"
	"github.com/MMR-MINGriyue/focusflow/internal/models"
	"github.com/MMR-MINGriyue/focusflow/internal/netmon"
	"github.com/MMR-MINGriyue/focusflow/internal/persist"
	"github.com/MMR-MINGriyue/focusflow/internal/storage"
	"github.com/MMR-MINGriyue/focusflow/internal/syncclient"
	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

var (
	version    string
	cfgDirFlag string
	cfgDir     string
	cfg        *config.Config
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "focusflow",
	Short: "Local-first focus session tracking with device sync",
	Long: `focusflow - A local-first focus and pomodoro session tracker.

State lives on this machine in durable storage with checksummed snapshots,
automatic backups, and schema migration. Changes queue while offline and
sync to the server when a connection returns.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgDirFlag, "config-dir", "", "Config and data directory (default ~/.config/focusflow)")

	// Add custom template function for showing aliases
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	// Needed for padding calculation
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	// Custom usage template that shows aliases inline
	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

func initConfig() {
	var err error
	cfgDir = cfgDirFlag
	if cfgDir == "" {
		cfgDir, err = config.Dir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot determine config directory: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err = config.Load(cfgDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired engine stack for one command invocation.
type app struct {
	Adapter storage.Adapter
	Persist *persist.Manager
	Monitor *netmon.Monitor
	Prober  *netmon.Prober
	Client  *syncclient.Client
	Engine  *syncengine.Manager
}

// openApp wires storage, persistence, network monitoring, and the sync
// engine from the loaded config. Callers must Close it.
func openApp() (*app, error) {
	adapter, err := openAdapter()
	if err != nil {
		return nil, err
	}

	deviceID, err := ensureDeviceID()
	if err != nil {
		adapter.Close()
		return nil, err
	}

	// The salt is derived from the device identity so the same
	// passphrase yields the same key across restarts.
	var key []byte
	if pass := os.Getenv("FOCUSFLOW_PASSPHRASE"); pass != "" {
		salt := sha256.Sum256([]byte(deviceID))
		key, err = crypto.DeriveKeyWithSalt(pass, salt[:])
		if err != nil {
			adapter.Close()
			return nil, fmt.Errorf("derive encryption key: %w", err)
		}
	}

	pm := persist.New(adapter, persist.Options{
		SchemaVersion: cfg.Engine.SchemaVersionOrDefault(),
		MaxBackups:    cfg.Engine.MaxBackupsOrDefault(),
		Compression:   cfg.Engine.CompressionOrDefault(),
		EncryptionKey: key,
		Migrations:    models.StateMigrations(),
	})

	client := syncclient.New(cfg.Server.URL, cfg.Server.APIKey, deviceID)
	mon := netmon.New(false)

	// The engine subscribes first so the prober's initial probe counts
	// as a connect edge.
	engine := syncengine.New(adapter, client, mon, syncengine.Options{
		BatchSize:       cfg.Engine.BatchSizeOrDefault(),
		MaxAttempts:     cfg.Engine.MaxAttemptsOrDefault(),
		SyncInterval:    cfg.Engine.SyncIntervalOrDefault(),
		RetryInterval:   cfg.Engine.RetryIntervalOrDefault(),
		DefaultStrategy: defaultStrategy(),
		AutoResolve:     cfg.Engine.AutoResolveOrDefault(),
		SyncOnConnect:   cfg.Engine.SyncOnConnectOrDefault(),
	})
	prober := netmon.NewProber(mon, client.HealthURL(), cfg.Engine.SyncIntervalOrDefault())

	return &app{
		Adapter: adapter,
		Persist: pm,
		Monitor: mon,
		Prober:  prober,
		Client:  client,
		Engine:  engine,
	}, nil
}

func (a *app) Close() {
	a.Prober.Stop()
	a.Engine.Destroy()
	a.Adapter.Close()
}

func openAdapter() (storage.Adapter, error) {
	dataDir := filepath.Join(cfgDir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	switch cfg.Storage {
	case "", "sqlite":
		return storage.OpenSQLite("sqlite", filepath.Join(dataDir, "focusflow.db"))
	case "badger":
		return storage.OpenBadger(filepath.Join(dataDir, "badger"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q (use sqlite or badger)", cfg.Storage)
	}
}

// ensureDeviceID returns the stable device identity, minting and
// saving one on first use.
func ensureDeviceID() (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}
	cfg.DeviceID = uuid.New().String()
	if err := config.Save(cfgDir, cfg); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return cfg.DeviceID, nil
}

func defaultStrategy() syncengine.Strategy {
	switch cfg.Engine.ConflictResolution {
	case "client":
		return syncengine.ClientWins
	case "server":
		return syncengine.ServerWins
	case "merge":
		return syncengine.Merge
	case "manual":
		return syncengine.Manual
	default:
		return syncengine.LastWriteWins
	}
}
