package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SQLite is an Adapter backed by a single kv table in a SQLite database.
// The driver is chosen by the caller: modernc.org/sqlite registers
// "sqlite" in production, mattn/go-sqlite3 registers "sqlite3" in tests.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed adapter at
// path using the given registered driver name.
func OpenSQLite(driver, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	conn, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	// WAL mode for concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key    TEXT PRIMARY KEY,
			value  BLOB NOT NULL
		)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init kv table: %w", err)
	}

	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %v", ErrRead, key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(key string, value []byte) error {
	_, err := s.conn.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrWrite, key, err)
	}
	return nil
}

func (s *SQLite) Remove(key string) error {
	if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: remove %q: %v", ErrWrite, key, err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.conn.Close() }
