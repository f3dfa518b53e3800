// Package storage is the durable mirror behind the in-memory transcript:
// one SQLite row per thread key holding the JSON-encoded ordered record
// sequence. The engine reads it once at thread activation and writes on
// debounced mutation and explicit clear.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"chatscribe/internal/fragment"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	thread_key TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// Store mirrors transcripts to a local SQLite database.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open initializes the database at the given path, creating parent
// directories and the schema as needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("set busy_timeout failed", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("set journal_mode=WAL failed", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("set synchronous=NORMAL failed", zap.Error(err))
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

// Save replaces the stored transcript for a thread.
func (s *Store) Save(threadKey string, records []fragment.Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO transcripts (thread_key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(thread_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		threadKey, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", threadKey, err)
	}
	return nil
}

// Load reads the stored transcript for a thread. A missing row yields a
// nil slice, not an error.
func (s *Store) Load(threadKey string) ([]fragment.Record, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM transcripts WHERE thread_key = ?`, threadKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", threadKey, err)
	}

	var records []fragment.Record
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", threadKey, err)
	}
	return records, nil
}

// Delete removes the stored transcript for a thread.
func (s *Store) Delete(threadKey string) error {
	if _, err := s.db.Exec(`DELETE FROM transcripts WHERE thread_key = ?`, threadKey); err != nil {
		return fmt.Errorf("delete transcript %s: %w", threadKey, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
