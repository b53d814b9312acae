// Package healthstore persists episodes, observations, interventions and
// the extraction audit trail in SQLite.
//
// All mutating calls are serialized through a single writer lock so that
// read-modify-write sequences such as appending a severity point never
// interleave. Read paths fail soft: a storage error is logged and an empty
// result returned, so a broken row never takes down a conversation turn.
package healthstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed health record store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex // single writer
}

// NewStore opens (or creates) the health database at dbPath.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open health database: %w", err)
	}

	s, err := NewStoreWithDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB creates a store on an existing database connection. The
// caller keeps ownership of db unless it later calls Close.
func NewStoreWithDB(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate health schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection so sibling stores can share the
// same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS episodes (
			id               TEXT PRIMARY KEY,
			condition        TEXT NOT NULL,
			started_at       TEXT NOT NULL,
			ended_at         TEXT,
			status           TEXT NOT NULL DEFAULT 'open',
			current_severity INTEGER,
			peak_severity    INTEGER,
			severity_points  TEXT NOT NULL DEFAULT '[]',
			notes_log        TEXT NOT NULL DEFAULT '[]',
			interventions    TEXT NOT NULL DEFAULT '[]',
			last_updated_at  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_episodes_status ON episodes(status);
		CREATE INDEX IF NOT EXISTS idx_episodes_condition ON episodes(condition);
		CREATE INDEX IF NOT EXISTS idx_episodes_started ON episodes(started_at);

		CREATE TABLE IF NOT EXISTS observations (
			id        TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			category  TEXT NOT NULL,
			value     TEXT,
			notes     TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_observations_timestamp ON observations(timestamp);

		CREATE TABLE IF NOT EXISTS interventions (
			id         TEXT PRIMARY KEY,
			episode_id TEXT,
			timestamp  TEXT NOT NULL,
			type       TEXT NOT NULL,
			dose       TEXT,
			timing     TEXT,
			notes      TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_interventions_episode ON interventions(episode_id);

		CREATE TABLE IF NOT EXISTS events (
			id          TEXT PRIMARY KEY,
			timestamp   TEXT NOT NULL,
			user_text   TEXT NOT NULL,
			parsed_data TEXT,
			action      TEXT NOT NULL,
			model       TEXT,
			confidence  REAL,
			episode_id  TEXT,
			event_hash  TEXT NOT NULL UNIQUE
		);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

		CREATE TABLE IF NOT EXISTS daily_history (
			date         TEXT PRIMARY KEY,
			avg_pain     REAL,
			max_pain     INTEGER,
			episodes     INTEGER NOT NULL,
			observations INTEGER NOT NULL
		);
	`)
	return err
}

// shortID returns prefix joined to eight random hex characters.
func shortID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:8]
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
