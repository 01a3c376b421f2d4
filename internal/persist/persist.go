// Package persist owns the save/load lifecycle of one named durable
// state blob: serialization, checksum validation, optional compression
// and encryption, schema migration, and a rotating backup ring. All
// reads and writes go through a storage.Adapter; a storage failure on
// save surfaces to the caller, while corruption on load is recovered
// from backups and only shows up as reduced freshness.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MMR-MINGriyue/focusflow/internal/storage"
	"github.com/google/uuid"
)

// Sentinel errors. Storage read/write failures carry the storage
// package sentinels through wrapping.
var (
	ErrSerialization    = errors.New("serialization failed")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrBackupExhausted  = errors.New("no valid backup")
)

// Default adapter keys. Both live under the state/ namespace so a
// shared backend never collides with the sync engine's keys.
const (
	DefaultStateKey   = "state/current"
	DefaultBackupsKey = "state/backups"
)

// Partializer drops transient fields from the serialized state before
// it is stamped and written.
type Partializer func(payload json.RawMessage) (json.RawMessage, error)

// Options configures a Manager.
type Options struct {
	// SchemaVersion is the version every save is stamped with and the
	// target Load migrates toward.
	SchemaVersion string
	// MaxBackups bounds the backup ring. Zero disables backups.
	MaxBackups int
	// Compression gzips payloads before write. Failure to compress
	// falls back to storing raw bytes, never fails the save.
	Compression bool
	// EncryptionKey, when 32 bytes, encrypts stored payloads at rest.
	EncryptionKey []byte
	// Partializer, when set, filters the payload on every Save.
	Partializer Partializer
	// Migrations is the ordered rule chain applied on Load.
	Migrations []MigrationRule
	// StateKey/BackupsKey override the default adapter keys.
	StateKey   string
	BackupsKey string
}

// LoadReport describes how the last Load obtained its result.
type LoadReport struct {
	UsedBackup   bool
	BackupID     string
	MigrationGap bool
	FromVersion  string
	LoadedAt     time.Time
}

// Manager is the persistence manager for one durable state blob.
type Manager struct {
	mu      sync.Mutex
	adapter storage.Adapter
	opts    Options
	report  LoadReport
}

// New creates a Manager writing through adapter.
func New(adapter storage.Adapter, opts Options) *Manager {
	if opts.StateKey == "" {
		opts.StateKey = DefaultStateKey
	}
	if opts.BackupsKey == "" {
		opts.BackupsKey = DefaultBackupsKey
	}
	return &Manager{adapter: adapter, opts: opts}
}

// Save serializes state, stamps it with the configured schema version
// and a checksum, writes it through the adapter, and appends a backup.
// Storage failures surface to the caller; no backup is recorded then.
func (m *Manager) Save(state any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: marshal state: %v", ErrSerialization, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(json.RawMessage(payload), "save")
}

// saveLocked runs the stamped write plus backup append. The caller
// holds m.mu.
func (m *Manager) saveLocked(payload json.RawMessage, description string) error {
	if m.opts.Partializer != nil {
		filtered, err := m.opts.Partializer(payload)
		if err != nil {
			return fmt.Errorf("%w: partialize state: %v", ErrSerialization, err)
		}
		payload = filtered
	}

	snap := Snapshot{
		Payload:       payload,
		SchemaVersion: m.opts.SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Checksum:      checksum(payload),
	}

	data, err := encodeEnvelope(snap, m.opts.Compression, m.opts.EncryptionKey)
	if err != nil {
		return err
	}
	if err := m.adapter.Set(m.opts.StateKey, data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := m.appendBackup(snap, description); err != nil {
		return fmt.Errorf("record backup: %w", err)
	}

	slog.Debug("state saved", "version", snap.SchemaVersion, "bytes", len(payload))
	return nil
}

// Load reads the current snapshot. A missing blob returns (nil, nil).
// Corruption (checksum mismatch, decode failure) falls back to the
// newest validating backup; if none validates, Load returns (nil, nil).
// The result is migrated to the configured schema version, and a
// version change is persisted so migration cost is paid once.
func (m *Manager) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.report = LoadReport{LoadedAt: time.Now().UTC()}

	data, found, err := m.adapter.Get(m.opts.StateKey)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	loaded := false
	if found {
		s, err := decodeEnvelope(data, m.opts.EncryptionKey)
		if err == nil && s.Valid() {
			snap, loaded = s, true
		} else {
			if err == nil {
				err = ErrChecksumMismatch
			}
			slog.Warn("snapshot invalid, trying backups", "err", err)
		}
	}

	if !loaded && found {
		rec, err := m.newestValidBackup()
		if errors.Is(err, ErrBackupExhausted) {
			slog.Warn("treating as no state", "err", err)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if rec == nil {
			slog.Warn("no backups recorded, treating as no state")
			return nil, nil
		}
		snap, loaded = rec.Snapshot, true
		m.report.UsedBackup = true
		m.report.BackupID = rec.ID
		slog.Info("restored from backup", "backup", rec.ID, "saved_at", snap.SavedAt)
	}

	if !loaded {
		return nil, nil
	}

	m.report.FromVersion = snap.SchemaVersion
	migrated, changed, gap := migrate(snap, m.opts.SchemaVersion, m.opts.Migrations)
	m.report.MigrationGap = gap
	if changed || m.report.UsedBackup {
		// Re-persist so the migration (or backup restore) is paid once,
		// not on every load.
		if err := m.saveLocked(migrated.Payload, fmt.Sprintf("reload from %s", snap.SchemaVersion)); err != nil {
			return nil, fmt.Errorf("persist reloaded snapshot: %w", err)
		}
	}

	return &migrated, nil
}

// Migrate runs snap through the configured rule chain toward the
// target schema version without touching storage. Reports whether the
// snapshot changed. Already-current snapshots pass through untouched.
func (m *Manager) Migrate(snap Snapshot) (Snapshot, bool) {
	out, changed, _ := migrate(snap, m.opts.SchemaVersion, m.opts.Migrations)
	return out, changed
}

// LastLoadReport returns how the most recent Load obtained its result.
func (m *Manager) LastLoadReport() LoadReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// appendBackup pushes snap onto the ring and evicts oldest-first past
// MaxBackups.
func (m *Manager) appendBackup(snap Snapshot, description string) error {
	if m.opts.MaxBackups <= 0 {
		return nil
	}

	backups, err := m.readBackups()
	if err != nil {
		return err
	}

	backups = append(backups, BackupRecord{
		ID:          uuid.NewString(),
		Snapshot:    snap,
		Description: description,
	})

	for len(backups) > m.opts.MaxBackups {
		oldest := 0
		for i := range backups {
			if backups[i].Snapshot.SavedAt.Before(backups[oldest].Snapshot.SavedAt) {
				oldest = i
			}
		}
		backups = append(backups[:oldest], backups[oldest+1:]...)
	}

	return m.writeBackups(backups)
}

// newestValidBackup scans the ring for the most recent record whose
// own checksum still validates. A non-empty ring where nothing
// validates returns ErrBackupExhausted.
func (m *Manager) newestValidBackup() (*BackupRecord, error) {
	backups, err := m.readBackups()
	if err != nil {
		return nil, err
	}

	var best *BackupRecord
	for i := range backups {
		rec := &backups[i]
		if !rec.Snapshot.Valid() {
			slog.Warn("skipping corrupt backup", "backup", rec.ID)
			continue
		}
		if best == nil || rec.Snapshot.SavedAt.After(best.Snapshot.SavedAt) {
			best = rec
		}
	}
	if best == nil && len(backups) > 0 {
		return nil, ErrBackupExhausted
	}
	return best, nil
}

func (m *Manager) readBackups() ([]BackupRecord, error) {
	data, found, err := m.adapter.Get(m.opts.BackupsKey)
	if err != nil {
		return nil, fmt.Errorf("read backups: %w", err)
	}
	if !found {
		return nil, nil
	}
	var backups []BackupRecord
	if err := json.Unmarshal(data, &backups); err != nil {
		// A corrupt ring must not block saves; start a fresh one.
		slog.Warn("backup ring corrupt, resetting", "err", err)
		return nil, nil
	}
	return backups, nil
}

func (m *Manager) writeBackups(backups []BackupRecord) error {
	data, err := json.Marshal(backups)
	if err != nil {
		return fmt.Errorf("%w: marshal backups: %v", ErrSerialization, err)
	}
	if err := m.adapter.Set(m.opts.BackupsKey, data); err != nil {
		return fmt.Errorf("write backups: %w", err)
	}
	return nil
}

// Backups returns the current ring, newest first.
func (m *Manager) Backups() ([]BackupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	backups, err := m.readBackups()
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(backups); i++ {
		for j := i + 1; j < len(backups); j++ {
			if backups[j].Snapshot.SavedAt.After(backups[i].Snapshot.SavedAt) {
				backups[i], backups[j] = backups[j], backups[i]
			}
		}
	}
	return backups, nil
}
