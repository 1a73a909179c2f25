// Package settings provides a small key/value settings store backed by a
// single SQLite file. The vault core uses it for the plaintext item
// catalog blob and the in-progress draft blob; secret material never goes
// through this store.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	// DBFileName is the settings database file inside the data directory.
	DBFileName = "settings.db"

	// FileMode restricts the database file to the owner.
	FileMode = 0600

	// DirMode restricts the data directory to the owner.
	DirMode = 0700
)

// ErrClosed indicates the store has already been closed.
var ErrClosed = errors.New("settings: store is closed")

// Store is a settings store mapping string keys to opaque byte values.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the settings store inside dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, DirMode); err != nil {
		return nil, fmt.Errorf("settings: failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("settings: failed to open database: %w", err)
	}

	// Single-connection mode avoids "database is locked" errors; the store
	// has no concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: failed to create table: %w", err)
	}

	if err := os.Chmod(dbPath, FileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: failed to set database permissions: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Get returns the value stored under key. The second return value reports
// whether the key was present; an absent key is not an error.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, ErrClosed
	}

	var value []byte
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("settings: failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value. The write is
// a single statement, so readers never observe a partial value.
func (s *Store) Set(key string, value []byte) error {
	if s.db == nil {
		return ErrClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("settings: failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes key from the store. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	if s.db == nil {
		return ErrClosed
	}

	if _, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("settings: failed to delete key %q: %w", key, err)
	}
	return nil
}

// Path returns the settings database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
