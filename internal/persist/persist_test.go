package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MMR-MINGriyue/focusflow/internal/storage"
)

// taskDoc/stateDoc mirror the application's durable payload shape
// without importing it; the manager treats payloads as opaque JSON.
type taskDoc struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type settingsDoc struct {
	FocusMinutes     int `json:"focus_minutes"`
	SessionsPerCycle int `json:"sessions_per_cycle"`
}

type stateDoc struct {
	Tasks    []taskDoc   `json:"tasks"`
	Settings settingsDoc `json:"settings"`
}

func testState(title string) stateDoc {
	return stateDoc{
		Tasks: []taskDoc{{
			ID:        "t1",
			Title:     title,
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}},
		Settings: settingsDoc{FocusMinutes: 25, SessionsPerCycle: 4},
	}
}

func newManager(t *testing.T, opts Options) (*Manager, *storage.Memory) {
	t.Helper()
	if opts.SchemaVersion == "" {
		opts.SchemaVersion = "2.0"
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 5
	}
	mem := storage.NewMemory()
	return New(mem, opts), mem
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, compression := range []bool{false, true} {
		t.Run(fmt.Sprintf("compression=%v", compression), func(t *testing.T) {
			m, _ := newManager(t, Options{Compression: compression})

			want := testState("write code")
			if err := m.Save(want); err != nil {
				t.Fatalf("save: %v", err)
			}

			snap, err := m.Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if snap == nil {
				t.Fatal("load returned no state after save")
			}
			if snap.SchemaVersion != "2.0" {
				t.Fatalf("schema version: got %q, want %q", snap.SchemaVersion, "2.0")
			}

			var got stateDoc
			if err := json.Unmarshal(snap.Payload, &got); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if len(got.Tasks) != 1 || got.Tasks[0].Title != "write code" {
				t.Fatalf("round trip: got %+v", got.Tasks)
			}
		})
	}
}

func TestLoad_NoStateIsNotError(t *testing.T) {
	m, _ := newManager(t, Options{})
	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load empty store: %v", err)
	}
	if snap != nil {
		t.Fatalf("load empty store: got %+v, want nil", snap)
	}
}

func TestSave_StorageFailureSurfacesAndNoBackup(t *testing.T) {
	m, mem := newManager(t, Options{})
	mem.FailWrites = true

	err := m.Save(testState("x"))
	if !errors.Is(err, storage.ErrWrite) {
		t.Fatalf("save error: got %v, want ErrWrite", err)
	}

	mem.FailWrites = false
	backups, err := m.Backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 0 {
		t.Fatalf("backups after failed save: got %d, want 0", len(backups))
	}
}

func TestLoad_CorruptBlobFallsBackToBackup(t *testing.T) {
	m, mem := newManager(t, Options{})

	if err := m.Save(testState("first")); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := m.Save(testState("second")); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	if !mem.Corrupt(DefaultStateKey, 10) {
		t.Fatal("corrupt state key failed")
	}

	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap == nil {
		t.Fatal("load should recover from backup, got no state")
	}

	var got stateDoc
	if err := json.Unmarshal(snap.Payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Tasks[0].Title != "second" {
		t.Fatalf("recovered payload: got %q, want newest backup %q", got.Tasks[0].Title, "second")
	}

	report := m.LastLoadReport()
	if !report.UsedBackup {
		t.Fatal("report.UsedBackup: got false, want true")
	}
	if report.BackupID == "" {
		t.Fatal("report.BackupID empty")
	}
}

func TestLoad_ChecksumMismatchNeverReturnsCorruptData(t *testing.T) {
	m, mem := newManager(t, Options{MaxBackups: -1}) // backups disabled

	if err := m.Save(testState("good")); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Tamper with the payload while keeping the envelope valid JSON:
	// decode, swap the body, re-store under the stale checksum.
	data, _, _ := mem.Get(DefaultStateKey)
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	env["body"] = []byte(`{"tasks":[],"sessions":[],"settings":{},"stats":{}}`)
	env["encoding"] = "raw"
	tampered, _ := json.Marshal(env)
	mem.Set(DefaultStateKey, tampered)

	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap != nil {
		t.Fatalf("corrupt data with no backups must yield no state, got %+v", snap)
	}
}

func TestLoad_AllBackupsCorruptYieldsNoState(t *testing.T) {
	m, mem := newManager(t, Options{})

	if err := m.Save(testState("only")); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Invalidate the snapshot and every record in the ring.
	if !mem.Corrupt(DefaultStateKey, 10) {
		t.Fatal("corrupt state key failed")
	}
	data, _, _ := mem.Get(DefaultBackupsKey)
	var backups []BackupRecord
	if err := json.Unmarshal(data, &backups); err != nil {
		t.Fatalf("unmarshal ring: %v", err)
	}
	for i := range backups {
		backups[i].Snapshot.Checksum = "deadbeef"
	}
	tampered, _ := json.Marshal(backups)
	mem.Set(DefaultBackupsKey, tampered)

	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap != nil {
		t.Fatalf("exhausted ring must yield no state, got %+v", snap)
	}
}

func TestBackupRing_BoundedOldestEvictedFirst(t *testing.T) {
	const maxBackups = 3
	m, _ := newManager(t, Options{MaxBackups: maxBackups})

	for i := 0; i < maxBackups+4; i++ {
		if err := m.Save(testState(fmt.Sprintf("rev-%d", i))); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		time.Sleep(time.Millisecond) // distinct SavedAt ordering
	}

	backups, err := m.Backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != maxBackups {
		t.Fatalf("ring size: got %d, want %d", len(backups), maxBackups)
	}

	// Backups() is newest first; the survivors must be the last saves.
	for i, want := range []string{"rev-6", "rev-5", "rev-4"} {
		var got stateDoc
		if err := json.Unmarshal(backups[i].Snapshot.Payload, &got); err != nil {
			t.Fatalf("unmarshal backup %d: %v", i, err)
		}
		if got.Tasks[0].Title != want {
			t.Errorf("backup[%d]: got %q, want %q", i, got.Tasks[0].Title, want)
		}
	}
}

func TestMigrate_ChainAppliedAndPersistedOnce(t *testing.T) {
	mem := storage.NewMemory()

	// Write a v1.0 snapshot through a v1.0 manager.
	v1 := New(mem, Options{SchemaVersion: "1.0", MaxBackups: 5})
	if err := v1.Save(map[string]any{"items": []string{"a"}}); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	rules := []MigrationRule{
		{FromVersion: "1.0", ToVersion: "1.1", Transform: func(p json.RawMessage) (json.RawMessage, error) {
			var s map[string]any
			json.Unmarshal(p, &s)
			s["renamed"] = s["items"]
			delete(s, "items")
			return json.Marshal(s)
		}},
		{FromVersion: "1.1", ToVersion: "2.0", Transform: func(p json.RawMessage) (json.RawMessage, error) {
			var s map[string]any
			json.Unmarshal(p, &s)
			s["schema_note"] = "v2"
			return json.Marshal(s)
		}},
	}

	m := New(mem, Options{SchemaVersion: "2.0", MaxBackups: 5, Migrations: rules})
	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.SchemaVersion != "2.0" {
		t.Fatalf("version after migration: got %q, want 2.0", snap.SchemaVersion)
	}

	var got map[string]any
	json.Unmarshal(snap.Payload, &got)
	if _, ok := got["items"]; ok {
		t.Fatal("migrated payload still has old field")
	}
	if got["schema_note"] != "v2" {
		t.Fatalf("second rule not applied: %v", got)
	}

	// Migration result must be persisted: a second load must be a
	// byte-for-byte no-op on the stored blob.
	before, _, _ := mem.Get(DefaultStateKey)
	if _, err := m.Load(); err != nil {
		t.Fatalf("second load: %v", err)
	}
	after, _, _ := mem.Get(DefaultStateKey)
	if !bytes.Equal(before, after) {
		t.Fatal("already-migrated snapshot was re-saved on load")
	}
}

func TestMigrate_GapStampsTargetVersion(t *testing.T) {
	mem := storage.NewMemory()
	v1 := New(mem, Options{SchemaVersion: "1.0", MaxBackups: 5})
	if err := v1.Save(map[string]any{"x": 1}); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	// No rule matches 1.0, so the chain halts immediately.
	rules := []MigrationRule{
		{FromVersion: "1.5", ToVersion: "2.0", Transform: func(p json.RawMessage) (json.RawMessage, error) {
			return p, nil
		}},
	}
	m := New(mem, Options{SchemaVersion: "2.0", MaxBackups: 5, Migrations: rules})

	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.SchemaVersion != "2.0" {
		t.Fatalf("version: got %q, want target 2.0 despite gap", snap.SchemaVersion)
	}
	if !m.LastLoadReport().MigrationGap {
		t.Fatal("report.MigrationGap: got false, want true")
	}
}

func TestPartializer_DropsTransientFields(t *testing.T) {
	part := func(p json.RawMessage) (json.RawMessage, error) {
		var s map[string]any
		if err := json.Unmarshal(p, &s); err != nil {
			return nil, err
		}
		delete(s, "transient")
		return json.Marshal(s)
	}
	m, _ := newManager(t, Options{Partializer: part})

	if err := m.Save(map[string]any{"keep": true, "transient": "scratch"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var got map[string]any
	json.Unmarshal(snap.Payload, &got)
	if _, ok := got["transient"]; ok {
		t.Fatal("transient field survived partializer")
	}
	if got["keep"] != true {
		t.Fatalf("kept field lost: %v", got)
	}
}

func TestEncryption_RoundTripAndAtRest(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	m, mem := newManager(t, Options{EncryptionKey: key})

	if err := m.Save(testState("secret plan")); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored, _, _ := mem.Get(DefaultStateKey)
	if bytes.Contains(stored, []byte("secret plan")) {
		t.Fatal("plaintext visible in stored envelope")
	}

	snap, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var got stateDoc
	json.Unmarshal(snap.Payload, &got)
	if got.Tasks[0].Title != "secret plan" {
		t.Fatalf("decrypted payload: got %q", got.Tasks[0].Title)
	}
}

func TestExportImport_RoundTripWithPreImportBackup(t *testing.T) {
	src, _ := newManager(t, Options{})
	if err := src.Save(testState("exported")); err != nil {
		t.Fatalf("save source: %v", err)
	}
	blob, err := src.ExportAll()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if blob.Data == nil {
		t.Fatal("export blob has no data")
	}

	dst, _ := newManager(t, Options{})
	if err := dst.Save(testState("pre-import")); err != nil {
		t.Fatalf("save dest: %v", err)
	}
	if err := dst.ImportAll(blob); err != nil {
		t.Fatalf("import: %v", err)
	}

	snap, err := dst.Load()
	if err != nil {
		t.Fatalf("load after import: %v", err)
	}
	var got stateDoc
	json.Unmarshal(snap.Payload, &got)
	if got.Tasks[0].Title != "exported" {
		t.Fatalf("imported payload: got %q, want %q", got.Tasks[0].Title, "exported")
	}

	// The overwritten state must be retained as a backup.
	backups, err := dst.Backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	found := false
	for _, b := range backups {
		if b.Description == "pre-import" {
			found = true
		}
	}
	if !found {
		t.Fatal("pre-import backup missing")
	}
}

func TestImportAll_RejectsCorruptBlob(t *testing.T) {
	m, _ := newManager(t, Options{})

	if err := m.ImportAll(nil); err == nil {
		t.Fatal("nil blob should be rejected")
	}

	bad := &ExportBlob{
		Version:   "2.0",
		Timestamp: time.Now(),
		Data: &Snapshot{
			Payload:       json.RawMessage(`{"x":1}`),
			SchemaVersion: "2.0",
			Checksum:      "not-the-real-checksum",
		},
	}
	if err := m.ImportAll(bad); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("import corrupt blob: got %v, want ErrChecksumMismatch", err)
	}
}

func TestExportAll_OmitsSnapshotFailingChecksum(t *testing.T) {
	m, mem := newManager(t, Options{})
	if err := m.Save(testState("tainted")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mem.Corrupt(DefaultStateKey, 10) {
		t.Fatal("corrupt: key not found")
	}

	blob, err := m.ExportAll()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if blob.Data != nil {
		t.Fatalf("export of corrupt snapshot: got %+v, want nil data", blob.Data)
	}
}

func TestImportAll_BackupsDisabledSkipsRingMerge(t *testing.T) {
	src, _ := newManager(t, Options{})
	if err := src.Save(testState("first")); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := src.Save(testState("second")); err != nil {
		t.Fatalf("save second: %v", err)
	}
	blob, err := src.ExportAll()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(blob.Backups) == 0 {
		t.Fatal("export blob carries no backups")
	}

	dst, _ := newManager(t, Options{MaxBackups: -1})
	if err := dst.ImportAll(blob); err != nil {
		t.Fatalf("import: %v", err)
	}

	backups, err := dst.Backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 0 {
		t.Fatalf("backup ring with backups disabled: got %d records, want 0", len(backups))
	}
}
