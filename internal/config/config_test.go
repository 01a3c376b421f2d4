package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != DefaultServerURL {
		t.Fatalf("server url: got %q, want default", cfg.Server.URL)
	}
	if got := cfg.Engine.SchemaVersionOrDefault(); got != DefaultSchemaVersion {
		t.Fatalf("schema version: got %q", got)
	}
	if got := cfg.Engine.MaxBackupsOrDefault(); got != DefaultMaxBackups {
		t.Fatalf("max backups: got %d", got)
	}
	if !cfg.Engine.CompressionOrDefault() {
		t.Fatal("compression should default on")
	}
	if cfg.Engine.AutoResolveOrDefault() {
		t.Fatal("auto-resolve should default off")
	}
	if !cfg.Engine.SyncOnConnectOrDefault() {
		t.Fatal("sync-on-connect should default on")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	off := false
	five := 5
	cfg := &Config{
		Storage:  "badger",
		DeviceID: "dev-1",
		Server:   Server{URL: "https://sync.example.com", APIKey: "k"},
		Engine: Engine{
			SchemaVersion: "3.1",
			MaxBackups:    &five,
			Compression:   &off,
			SyncInterval:  "90s",
		},
	}
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Storage != "badger" || got.DeviceID != "dev-1" {
		t.Fatalf("round trip: %+v", got)
	}
	if got.Server.URL != "https://sync.example.com" {
		t.Fatalf("server url: got %q", got.Server.URL)
	}
	if got.Engine.CompressionOrDefault() {
		t.Fatal("compression=false lost")
	}
	if got.Engine.SyncIntervalOrDefault() != 90*time.Second {
		t.Fatalf("sync interval: got %v", got.Engine.SyncIntervalOrDefault())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, &Config{Server: Server{URL: "http://file", APIKey: "file-key"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	t.Setenv("FOCUSFLOW_SERVER_URL", "http://env")
	t.Setenv("FOCUSFLOW_API_KEY", "env-key")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "http://env" || cfg.Server.APIKey != "env-key" {
		t.Fatalf("env override: %+v", cfg.Server)
	}
}

func TestLoad_CorruptFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("corrupt config should error")
	}
}

func TestDurationFallbacks(t *testing.T) {
	e := Engine{SyncInterval: "bogus", RetryInterval: "-5s"}
	if got := e.SyncIntervalOrDefault(); got != DefaultSyncInterval {
		t.Fatalf("bogus duration: got %v, want default", got)
	}
	if got := e.RetryIntervalOrDefault(); got != DefaultRetryInterval {
		t.Fatalf("negative duration: got %v, want default", got)
	}
}
