package healthstore

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateEvent is returned by AppendEvent when the same message was
// already recorded within the same minute.
var ErrDuplicateEvent = errors.New("duplicate event")

// Event is one entry in the extraction audit trail.
type Event struct {
	ID         string          `json:"event_id"`
	Timestamp  time.Time       `json:"timestamp"`
	UserText   string          `json:"user_text"`
	ParsedData json.RawMessage `json:"parsed_data,omitempty"`
	Action     string          `json:"action"`
	Model      string          `json:"model,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	EpisodeID  string          `json:"episode_id,omitempty"`
	Hash       string          `json:"event_hash"`
}

// EventHash is the idempotency key for a message: the trimmed text plus
// the UTC minute it arrived in.
func EventHash(text string, at time.Time) string {
	bucket := at.UTC().Truncate(time.Minute).Format("2006-01-02T15:04:05")
	sum := sha1.Sum([]byte(strings.TrimSpace(text) + bucket))
	return hex.EncodeToString(sum[:])
}

// AppendEvent records ev in the audit trail, filling in ID, Timestamp and
// Hash. A second event with the same hash is dropped and reported as
// ErrDuplicateEvent.
func (s *Store) AppendEvent(ctx context.Context, ev Event) (string, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.ID = shortID("evt")
	ev.Hash = EventHash(ev.UserText, ev.Timestamp)

	var conf sql.NullFloat64
	if ev.Confidence != nil {
		conf = sql.NullFloat64{Float64: *ev.Confidence, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events
			(id, timestamp, user_text, parsed_data, action, model, confidence, episode_id, event_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.Format(time.RFC3339Nano), ev.UserText, nullString(string(ev.ParsedData)),
		ev.Action, nullString(ev.Model), conf, nullString(ev.EpisodeID), ev.Hash)
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrDuplicateEvent
	}
	return ev.ID, nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) []Event {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_text, parsed_data, action, model, confidence, episode_id, event_hash
		FROM events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		s.logger.Warn("event list failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev                       Event
			ts                       string
			parsed, model, episodeID sql.NullString
			conf                     sql.NullFloat64
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.UserText, &parsed, &ev.Action, &model, &conf, &episodeID, &ev.Hash); err != nil {
			s.logger.Debug("skipping unreadable event row", "error", err)
			continue
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if parsed.Valid {
			ev.ParsedData = json.RawMessage(parsed.String)
		}
		ev.Model, ev.EpisodeID = model.String, episodeID.String
		if conf.Valid {
			ev.Confidence = &conf.Float64
		}
		out = append(out, ev)
	}
	return out
}

// EventSeen reports whether a message with the same text was already
// recorded in the minute containing at.
func (s *Store) EventSeen(ctx context.Context, text string, at time.Time) bool {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE event_hash = ?`, EventHash(text, at)).Scan(&n)
	if err != nil {
		s.logger.Warn("event lookup failed", "error", err)
		return false
	}
	return n > 0
}
