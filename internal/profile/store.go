// Package profile keeps the user's standing health profile: conditions,
// medications, routines and preferences, stored as per-user key/value
// fields.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a per-user key/value store backed by SQLite. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// Field is one stored profile entry.
type Field struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStore creates a profile store at the given database path. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB creates a profile store on an existing connection, such
// as the one the health store already holds.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_profile (
		user_id    TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the stored value for a user/key pair. Returns empty string
// and nil error if the key does not exist.
func (s *Store) Get(ctx context.Context, userID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_profile WHERE user_id = ? AND key = ?`,
		userID, normalizeKey(key),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", userID, key, err)
	}
	return value, nil
}

// Set upserts a field. Existing values are overwritten and updated_at
// refreshed.
func (s *Store) Set(ctx context.Context, userID, key, value string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profile (user_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		userID, normalizeKey(key), value, now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", userID, key, err)
	}
	return nil
}

// Delete removes a field. No error is returned if it does not exist.
func (s *Store) Delete(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_profile WHERE user_id = ? AND key = ?`,
		userID, normalizeKey(key),
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", userID, key, err)
	}
	return nil
}

// All returns every field for a user ordered by key. Returns an empty
// (non-nil) slice when the profile is empty.
func (s *Store) All(ctx context.Context, userID string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM user_profile WHERE user_id = ? ORDER BY key`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", userID, err)
	}
	defer rows.Close()

	result := []Field{}
	for rows.Next() {
		var (
			f  Field
			ts string
		)
		if err := rows.Scan(&f.Key, &f.Value, &ts); err != nil {
			return nil, fmt.Errorf("scan %s: %w", userID, err)
		}
		f.UpdatedAt, _ = time.Parse(time.RFC3339, ts)
		result = append(result, f)
	}
	return result, rows.Err()
}

// normalizeKey folds "Sleep Routine" and "sleep_routine" together.
func normalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(key, "_", " "))), "_")
}
