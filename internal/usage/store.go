// Package usage records token usage for every LLM call so the cost of
// routing, extraction and coaching can be compared.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Roles a call can be attributed to.
const (
	RoleRouter    = "router"
	RoleExtractor = "extractor"
	RoleCoach     = "coach"
)

// Record is one LLM call.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Role         string    `json:"role"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Failed       bool      `json:"failed,omitempty"`
}

// Summary holds aggregated totals.
type Summary struct {
	Calls        int   `json:"calls"`
	Failures     int   `json:"failures"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// Store is an append-only table of usage records. It shares the
// companion database.
type Store struct {
	db *sql.DB
}

// NewStoreWithDB creates the schema on db if needed.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS llm_usage (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		model         TEXT NOT NULL,
		role          TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		latency_ms    INTEGER NOT NULL,
		failed        INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_llm_usage_timestamp ON llm_usage(timestamp);
	`)
	return err
}

// Add persists rec, filling in the ID and timestamp when unset.
func (s *Store) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage (id, timestamp, model, role, input_tokens, output_tokens, latency_ms, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UTC().Format(time.RFC3339), rec.Model, rec.Role,
		rec.InputTokens, rec.OutputTokens, rec.LatencyMs, rec.Failed)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Total aggregates records within [start, end).
func (s *Store) Total(ctx context.Context, start, end time.Time) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(failed), 0), COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0), COALESCE(CAST(AVG(latency_ms) AS INTEGER), 0)
		FROM llm_usage WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
	).Scan(&sum.Calls, &sum.Failures, &sum.InputTokens, &sum.OutputTokens, &sum.AvgLatencyMs)
	if err != nil {
		return sum, fmt.Errorf("query usage total: %w", err)
	}
	return sum, nil
}

// ByRole aggregates records within [start, end) per role.
func (s *Store) ByRole(ctx context.Context, start, end time.Time) (map[string]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, COUNT(*), COALESCE(SUM(failed), 0), COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0), COALESCE(CAST(AVG(latency_ms) AS INTEGER), 0)
		FROM llm_usage WHERE timestamp >= ? AND timestamp < ?
		GROUP BY role`,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query usage by role: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Summary)
	for rows.Next() {
		var role string
		var sum Summary
		if err := rows.Scan(&role, &sum.Calls, &sum.Failures, &sum.InputTokens, &sum.OutputTokens, &sum.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage by role: %w", err)
		}
		out[role] = sum
	}
	return out, rows.Err()
}
