package healthstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
)

// MaxCandidates caps the number of candidates offered to the resolver.
const MaxCandidates = 5

// MaxEpisodeDuration is how long an episode may go without an update
// before CloseStale closes it.
const MaxEpisodeDuration = 72 * time.Hour

// salientNoteLen is the rune limit for the note part of a salient summary.
const salientNoteLen = 50

const episodeColumns = `id, condition, started_at, ended_at, status, current_severity,
	peak_severity, severity_points, notes_log, interventions, last_updated_at`

// EpisodeFilter narrows ListEpisodes. Zero values match everything.
type EpisodeFilter struct {
	Status        episode.Status
	Conditions    []string
	StartedAfter  time.Time // inclusive
	StartedBefore time.Time // exclusive
	Limit         int
}

// CreateEpisode opens a new episode for condition, seeding its severity
// and notes from fields.
func (s *Store) CreateEpisode(ctx context.Context, condition string, fields episode.Fields, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	if condition == "" {
		condition = "unspecified"
	}

	ep := episode.Episode{
		ID:              fmt.Sprintf("ep_%s_%s", now.Format(time.DateOnly), shortID(condition)),
		Condition:       condition,
		StartedAt:       now,
		Status:          episode.StatusOpen,
		CurrentSeverity: fields.Severity,
		PeakSeverity:    fields.Severity,
		SeverityPoints:  []episode.SeverityPoint{},
		Notes:           []episode.Note{},
		Interventions:   []episode.Intervention{},
		LastUpdatedAt:   now,
	}
	if fields.Severity != nil {
		ep.SeverityPoints = append(ep.SeverityPoints, episode.SeverityPoint{At: now, Level: *fields.Severity})
	}
	if fields.Notes != "" {
		ep.Notes = append(ep.Notes, episode.Note{At: now, Text: fields.Notes})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := insertEpisode(ctx, s.db, ep, false); err != nil {
		return "", fmt.Errorf("create episode: %w", err)
	}
	s.logger.Debug("episode created", "episode_id", ep.ID, "condition", condition)
	return ep.ID, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEpisode(ctx context.Context, db execer, ep episode.Episode, replace bool) error {
	points, err := json.Marshal(ep.SeverityPoints)
	if err != nil {
		return fmt.Errorf("encode severity points: %w", err)
	}
	notes, err := json.Marshal(ep.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	ivs, err := json.Marshal(ep.Interventions)
	if err != nil {
		return fmt.Errorf("encode interventions: %w", err)
	}

	var ended sql.NullString
	if ep.EndedAt != nil {
		ended = nullString(episode.FormatTimestamp(*ep.EndedAt))
	}
	var updated sql.NullString
	if !ep.LastUpdatedAt.IsZero() {
		updated = nullString(episode.FormatTimestamp(ep.LastUpdatedAt))
	}

	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	_, err = db.ExecContext(ctx, verb+` INTO episodes (`+episodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Condition, episode.FormatTimestamp(ep.StartedAt), ended, string(ep.Status),
		nullInt(ep.CurrentSeverity), nullInt(ep.PeakSeverity),
		string(points), string(notes), string(ivs), updated,
	)
	return err
}

// UpdateEpisode appends the severity and notes in fields to an existing
// episode and refreshes its last-updated time. The peak severity only
// ever rises. It reports false when the episode does not exist or the
// write fails; the two cases are logged differently.
func (s *Store) UpdateEpisode(ctx context.Context, id string, fields episode.Fields, now time.Time) bool {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ep, err := scanEpisode(tx.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id))
		if err != nil {
			return err
		}

		if fields.Severity != nil {
			sev := *fields.Severity
			ep.CurrentSeverity = episode.Intptr(sev)
			if ep.PeakSeverity == nil || sev > *ep.PeakSeverity {
				ep.PeakSeverity = episode.Intptr(sev)
			}
			ep.SeverityPoints = append(ep.SeverityPoints, episode.SeverityPoint{At: now, Level: sev})
		}
		if fields.Notes != "" {
			ep.Notes = append(ep.Notes, episode.Note{At: now, Text: fields.Notes})
		}
		ep.LastUpdatedAt = now

		return insertEpisode(ctx, tx, *ep, true)
	})

	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Info("episode update skipped, no such episode", "episode_id", id)
		return false
	case err != nil:
		s.logger.Error("episode update failed", "episode_id", id, "error", err)
		return false
	}
	return true
}

// GetEpisode returns one episode by ID, or ErrNotFound.
func (s *Store) GetEpisode(ctx context.Context, id string) (*episode.Episode, error) {
	ep, err := scanEpisode(s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("episode read failed", "episode_id", id, "error", err)
		}
		return nil, err
	}
	return ep, nil
}

// ListEpisodes returns episodes matching f, newest start first. Errors
// are logged and yield an empty list.
func (s *Store) ListEpisodes(ctx context.Context, f EpisodeFilter) []episode.Episode {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(f.Conditions) > 0 {
		where = append(where, "condition IN (?"+strings.Repeat(", ?", len(f.Conditions)-1)+")")
		for _, c := range f.Conditions {
			args = append(args, c)
		}
	}
	if !f.StartedAfter.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, episode.FormatTimestamp(f.StartedAfter))
	}
	if !f.StartedBefore.IsZero() {
		where = append(where, "started_at < ?")
		args = append(args, episode.FormatTimestamp(f.StartedBefore))
	}

	q := `SELECT ` + episodeColumns + ` FROM episodes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logger.Warn("episode list failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []episode.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			s.logger.Debug("skipping unreadable episode row", "error", err)
			continue
		}
		out = append(out, *ep)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("episode list interrupted", "error", err)
	}
	return out
}

// FetchCandidates returns open episodes updated within window of now,
// most recently updated first, capped at MaxCandidates. Episodes whose
// last-updated time cannot be parsed are skipped.
func (s *Store) FetchCandidates(ctx context.Context, window time.Duration, now time.Time) []episode.Candidate {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, condition, started_at, current_severity, notes_log, last_updated_at
		FROM episodes WHERE status = ?`, string(episode.StatusOpen))
	if err != nil {
		s.logger.Warn("candidate query failed", "error", err)
		return []episode.Candidate{}
	}
	defer rows.Close()

	type ranked struct {
		c    episode.Candidate
		last time.Time
	}
	var found []ranked
	for rows.Next() {
		var (
			c       episode.Candidate
			sev     sql.NullInt64
			notes   string
			updated sql.NullString
		)
		if err := rows.Scan(&c.EpisodeID, &c.Condition, &c.StartedAt, &sev, &notes, &updated); err != nil {
			s.logger.Debug("skipping unreadable candidate row", "error", err)
			continue
		}
		last, ok := episode.ParseTimestamp(updated.String)
		if !ok {
			s.logger.Debug("skipping candidate with bad last_updated_at",
				"episode_id", c.EpisodeID, "value", updated.String)
			continue
		}
		if now.Sub(last) > window {
			continue
		}
		c.LastUpdatedAt = updated.String
		c.CurrentSeverity = intPtr(sev)

		var log []episode.Note
		_ = json.Unmarshal([]byte(notes), &log)
		c.Salient = Salient(c.CurrentSeverity, log)

		found = append(found, ranked{c: c, last: last})
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("candidate scan interrupted", "error", err)
	}

	slices.SortStableFunc(found, func(a, b ranked) int {
		return b.last.Compare(a.last)
	})

	out := make([]episode.Candidate, 0, min(len(found), MaxCandidates))
	for i := 0; i < len(found) && i < MaxCandidates; i++ {
		out = append(out, found[i].c)
	}
	return out
}

// Salient builds the one-line summary shown next to a candidate.
func Salient(severity *int, notes []episode.Note) string {
	var parts []string
	if severity != nil {
		parts = append(parts, fmt.Sprintf("severity %d", *severity))
	}
	if len(notes) > 0 {
		if text := notes[len(notes)-1].Text; text != "" {
			parts = append(parts, truncateRunes(text, salientNoteLen))
		}
	}
	if len(parts) == 0 {
		return "recent episode"
	}
	return strings.Join(parts, "; ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CloseEpisode marks an open episode closed as of now. It reports false
// when the episode is missing or already closed.
func (s *Store) CloseEpisode(ctx context.Context, id string, now time.Time) bool {
	if now.IsZero() {
		now = time.Now()
	}
	ts := episode.FormatTimestamp(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET status = ?, ended_at = ?, last_updated_at = ?
		WHERE id = ? AND status = ?`,
		string(episode.StatusClosed), ts, ts, id, string(episode.StatusOpen))
	if err != nil {
		s.logger.Error("episode close failed", "episode_id", id, "error", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

// CloseStale closes open episodes that have gone more than maxAge without
// an update. The episode's end time is its last update. Episodes with an
// unreadable last-updated time are left alone.
func (s *Store) CloseStale(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		maxAge = MaxEpisodeDuration
	}
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, last_updated_at FROM episodes WHERE status = ?`,
		string(episode.StatusOpen))
	if err != nil {
		return 0, fmt.Errorf("query open episodes: %w", err)
	}

	type stale struct{ id, endedAt string }
	var targets []stale
	for rows.Next() {
		var id string
		var updated sql.NullString
		if err := rows.Scan(&id, &updated); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan open episode: %w", err)
		}
		last, ok := episode.ParseTimestamp(updated.String)
		if ok && now.Sub(last) > maxAge {
			targets = append(targets, stale{id: id, endedAt: episode.FormatTimestamp(last)})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("scan open episodes: %w", err)
	}

	closed := 0
	for _, t := range targets {
		_, err := s.db.ExecContext(ctx, `UPDATE episodes SET status = ?, ended_at = ? WHERE id = ?`,
			string(episode.StatusClosed), t.endedAt, t.id)
		if err != nil {
			return closed, fmt.Errorf("close episode %s: %w", t.id, err)
		}
		closed++
		s.logger.Info("closed stale episode", "episode_id", t.id, "last_updated_at", t.endedAt)
	}
	return closed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (*episode.Episode, error) {
	var (
		ep                       episode.Episode
		started                  string
		ended, updated           sql.NullString
		status                   string
		current, peak            sql.NullInt64
		points, notes, ivsColumn string
	)
	err := row.Scan(&ep.ID, &ep.Condition, &started, &ended, &status, &current, &peak,
		&points, &notes, &ivsColumn, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan episode: %w", err)
	}

	ep.Status = episode.Status(status)
	ep.CurrentSeverity = intPtr(current)
	ep.PeakSeverity = intPtr(peak)
	if t, ok := episode.ParseTimestamp(started); ok {
		ep.StartedAt = t
	}
	if t, ok := episode.ParseTimestamp(ended.String); ok {
		ep.EndedAt = &t
	}
	if t, ok := episode.ParseTimestamp(updated.String); ok {
		ep.LastUpdatedAt = t
	}

	if err := json.Unmarshal([]byte(points), &ep.SeverityPoints); err != nil {
		return nil, fmt.Errorf("decode severity points for %s: %w", ep.ID, err)
	}
	if err := json.Unmarshal([]byte(notes), &ep.Notes); err != nil {
		return nil, fmt.Errorf("decode notes for %s: %w", ep.ID, err)
	}
	if err := json.Unmarshal([]byte(ivsColumn), &ep.Interventions); err != nil {
		return nil, fmt.Errorf("decode interventions for %s: %w", ep.ID, err)
	}
	return &ep, nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
