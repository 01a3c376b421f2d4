package persist

import (
	"fmt"
	"log/slog"
	"time"
)

// ExportBlob is the self-contained transfer object for manual backup
// and restore across devices.
type ExportBlob struct {
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Data      *Snapshot      `json:"data"`
	Backups   []BackupRecord `json:"backups"`
}

// ExportAll produces a transfer blob holding the current snapshot and
// the backup ring. Data is nil when no state has been saved yet or the
// stored snapshot fails its checksum.
func (m *Manager) ExportAll() (*ExportBlob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob := &ExportBlob{
		Version:   m.opts.SchemaVersion,
		Timestamp: time.Now().UTC(),
	}

	data, found, err := m.adapter.Get(m.opts.StateKey)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if found {
		snap, err := decodeEnvelope(data, m.opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
		if snap.Valid() {
			blob.Data = &snap
		} else {
			slog.Warn("current snapshot fails checksum, exporting backups only",
				"key", m.opts.StateKey)
		}
	}

	backups, err := m.readBackups()
	if err != nil {
		return nil, err
	}
	blob.Backups = backups

	return blob, nil
}

// ImportAll replaces the current state and backup ring with the blob's
// contents. The pre-import state is first recorded as a backup, so a
// bad import can be recovered from.
func (m *Manager) ImportAll(blob *ExportBlob) error {
	if blob == nil || blob.Data == nil {
		return fmt.Errorf("%w: import blob has no data", ErrSerialization)
	}
	if !blob.Data.Valid() {
		return fmt.Errorf("%w: import data", ErrChecksumMismatch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Preserve what we are about to overwrite.
	if data, found, err := m.adapter.Get(m.opts.StateKey); err == nil && found {
		if snap, err := decodeEnvelope(data, m.opts.EncryptionKey); err == nil && snap.Valid() {
			if err := m.appendBackup(snap, "pre-import"); err != nil {
				return fmt.Errorf("backup current state: %w", err)
			}
		}
	}

	encoded, err := encodeEnvelope(*blob.Data, m.opts.Compression, m.opts.EncryptionKey)
	if err != nil {
		return err
	}
	if err := m.adapter.Set(m.opts.StateKey, encoded); err != nil {
		return fmt.Errorf("write imported snapshot: %w", err)
	}

	if len(blob.Backups) > 0 && m.opts.MaxBackups > 0 {
		merged, err := m.readBackups()
		if err != nil {
			return err
		}
		merged = append(merged, blob.Backups...)
		for len(merged) > m.opts.MaxBackups && m.opts.MaxBackups > 0 {
			oldest := 0
			for i := range merged {
				if merged[i].Snapshot.SavedAt.Before(merged[oldest].Snapshot.SavedAt) {
					oldest = i
				}
			}
			merged = append(merged[:oldest], merged[oldest+1:]...)
		}
		if err := m.writeBackups(merged); err != nil {
			return err
		}
	}

	return nil
}
