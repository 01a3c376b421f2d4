// Package config holds the engine options and the on-disk config file
// at ~/.config/focusflow/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults for unset options.
const (
	DefaultSchemaVersion = "2.0"
	DefaultMaxBackups    = 10
	DefaultBatchSize     = 50
	DefaultMaxAttempts   = 3
	DefaultSyncInterval  = 5 * time.Minute
	DefaultRetryInterval = 30 * time.Second
	DefaultServerURL     = "http://localhost:8080"
)

// Engine is the full set of recognized engine options, as stored in
// the config file. Durations are strings ("5m", "30s") so the file
// stays hand-editable.
type Engine struct {
	SchemaVersion      string `json:"schema_version,omitempty"`
	MaxBackups         *int   `json:"max_backups,omitempty"`
	Compression        *bool  `json:"compression,omitempty"`
	SyncInterval       string `json:"sync_interval,omitempty"`
	RetryInterval      string `json:"retry_interval,omitempty"`
	MaxAttempts        *int   `json:"max_attempts,omitempty"`
	BatchSize          *int   `json:"batch_size,omitempty"`
	ConflictResolution string `json:"conflict_resolution,omitempty"`
	AutoResolve        *bool  `json:"auto_resolve_conflicts,omitempty"`
	SyncOnConnect      *bool  `json:"sync_on_connect,omitempty"`
}

// Server holds the remote endpoint settings.
type Server struct {
	URL    string `json:"url,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

// Config is the focusflow config file.
type Config struct {
	Storage  string `json:"storage,omitempty"` // "sqlite" | "badger"
	DeviceID string `json:"device_id,omitempty"`
	Server   Server `json:"server"`
	Engine   Engine `json:"engine"`
}

// Dir returns ~/.config/focusflow, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "focusflow")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the config file from dir. A missing file returns zero
// config, not an error. FOCUSFLOW_SERVER_URL and FOCUSFLOW_API_KEY
// override the stored server settings.
func Load(dir string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("FOCUSFLOW_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("FOCUSFLOW_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if cfg.Server.URL == "" {
		cfg.Server.URL = DefaultServerURL
	}
	return &cfg, nil
}

// Save writes the config to dir using atomic write (temp file + rename).
func Save(dir string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, "config.json"))
}

// SchemaVersionOrDefault resolves the target schema version.
func (e Engine) SchemaVersionOrDefault() string {
	if e.SchemaVersion != "" {
		return e.SchemaVersion
	}
	return DefaultSchemaVersion
}

// MaxBackupsOrDefault resolves the backup ring capacity.
func (e Engine) MaxBackupsOrDefault() int {
	if e.MaxBackups != nil {
		return *e.MaxBackups
	}
	return DefaultMaxBackups
}

// CompressionOrDefault resolves the compression flag (default on).
func (e Engine) CompressionOrDefault() bool {
	if e.Compression != nil {
		return *e.Compression
	}
	return true
}

// SyncIntervalOrDefault resolves the periodic sync period.
func (e Engine) SyncIntervalOrDefault() time.Duration {
	return parseDurationOr(e.SyncInterval, DefaultSyncInterval)
}

// RetryIntervalOrDefault resolves the retry delay.
func (e Engine) RetryIntervalOrDefault() time.Duration {
	return parseDurationOr(e.RetryInterval, DefaultRetryInterval)
}

// MaxAttemptsOrDefault resolves the per-operation retry ceiling.
func (e Engine) MaxAttemptsOrDefault() int {
	if e.MaxAttempts != nil && *e.MaxAttempts > 0 {
		return *e.MaxAttempts
	}
	return DefaultMaxAttempts
}

// BatchSizeOrDefault resolves the dispatch batch size.
func (e Engine) BatchSizeOrDefault() int {
	if e.BatchSize != nil && *e.BatchSize > 0 {
		return *e.BatchSize
	}
	return DefaultBatchSize
}

// AutoResolveOrDefault resolves the auto-resolution flag (default off).
func (e Engine) AutoResolveOrDefault() bool {
	return e.AutoResolve != nil && *e.AutoResolve
}

// SyncOnConnectOrDefault resolves the connect-edge trigger (default on).
func (e Engine) SyncOnConnectOrDefault() bool {
	if e.SyncOnConnect != nil {
		return *e.SyncOnConnect
	}
	return true
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
