package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ SnapshotStore = (*SQLiteStore)(nil)

// SQLiteStore implements SnapshotStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// the schema, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Writers from the poller goroutines serialize here; a single
	// connection avoids SQLITE_BUSY under concurrent refresh.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			key      TEXT PRIMARY KEY,
			payload  BLOB NOT NULL,
			saved_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot upserts the latest payload for a key.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`, key, payload, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", key, err)
	}
	return nil
}

// LoadSnapshot returns the stored payload and its save time for a key.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, key string) ([]byte, time.Time, error) {
	var payload []byte
	var savedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, saved_at FROM snapshots WHERE key = ?`, key,
	).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("loading snapshot %s: %w", key, err)
	}
	return payload, time.UnixMilli(savedAt), nil
}

// DeleteSnapshot removes the stored payload for a key. Deleting an absent
// key is a no-op.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", key, err)
	}
	return nil
}
