// Package localstate persists purely local client state (share read markers
// and cached profile names) in SQLite. None of it ever goes over the wire.
package localstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driftnotes/drift/internal/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS read_shares (
  event_id TEXT PRIMARY KEY,
  read_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
  pubkey     TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`

// Store wraps the local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening local state db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating local state db: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; the schema must already be applied.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// MarkShareRead records that the share with the given event id was opened.
func (s *Store) MarkShareRead(ctx context.Context, eventID string) error {
	query := `INSERT INTO read_shares (event_id, read_at) VALUES (?, ?)
		ON CONFLICT(event_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, eventID, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to mark share read: %w", err)
	}
	return nil
}

// ReadShareIDs returns the set of share event ids already opened.
func (s *Store) ReadShareIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id FROM read_shares`)
	if err != nil {
		return nil, fmt.Errorf("failed to select read shares: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertProfile caches a display name for a pubkey.
func (s *Store) UpsertProfile(ctx context.Context, pubkey, name string) error {
	query := `INSERT INTO profiles (pubkey, name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, pubkey, name, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// ProfileName returns the cached display name for a pubkey.
func (s *Store) ProfileName(ctx context.Context, pubkey string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM profiles WHERE pubkey = ?`, pubkey).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to select profile: %w", err)
	}
	return name, nil
}
