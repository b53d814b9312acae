package healthstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
)

// ObservationFilter narrows ListObservations. Zero values match everything.
type ObservationFilter struct {
	Category string
	Since    time.Time // inclusive
	Until    time.Time // exclusive
	Limit    int
}

// AddIntervention records an intervention. When episodeID names an
// existing episode the intervention is also appended to it and the
// episode's last-updated time refreshed, in the same transaction.
func (s *Store) AddIntervention(ctx context.Context, episodeID string, in episode.InterventionInput, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	iv := episode.Intervention{
		ID:        shortID("int"),
		EpisodeID: episodeID,
		Timestamp: now,
		Type:      in.Type,
		Dose:      in.Dose,
		Timing:    in.Timing,
		Notes:     in.Notes,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertIntervention(ctx, tx, iv); err != nil {
			return err
		}
		if episodeID == "" {
			return nil
		}

		ep, err := scanEpisode(tx.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, episodeID))
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("intervention recorded without episode", "intervention_id", iv.ID, "episode_id", episodeID)
			return nil
		}
		if err != nil {
			return err
		}
		ep.Interventions = append(ep.Interventions, iv)
		ep.LastUpdatedAt = now
		return insertEpisode(ctx, tx, *ep, true)
	})
	if err != nil {
		return "", fmt.Errorf("add intervention: %w", err)
	}
	return iv.ID, nil
}

func insertIntervention(ctx context.Context, db execer, iv episode.Intervention) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO interventions (id, episode_id, timestamp, type, dose, timing, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, nullString(iv.EpisodeID), episode.FormatTimestamp(iv.Timestamp), iv.Type,
		nullString(iv.Dose), nullString(iv.Timing), nullString(iv.Notes))
	if err != nil {
		return fmt.Errorf("insert intervention: %w", err)
	}
	return nil
}

// ListInterventions returns interventions for one episode, or all of them
// when episodeID is empty, oldest first.
func (s *Store) ListInterventions(ctx context.Context, episodeID string) []episode.Intervention {
	q := `SELECT id, episode_id, timestamp, type, dose, timing, notes FROM interventions`
	var args []any
	if episodeID != "" {
		q += ` WHERE episode_id = ?`
		args = append(args, episodeID)
	}
	q += ` ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logger.Warn("intervention list failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []episode.Intervention
	for rows.Next() {
		var (
			iv                        episode.Intervention
			epID, dose, timing, notes sql.NullString
			ts                        string
		)
		if err := rows.Scan(&iv.ID, &epID, &ts, &iv.Type, &dose, &timing, &notes); err != nil {
			s.logger.Debug("skipping unreadable intervention row", "error", err)
			continue
		}
		iv.EpisodeID, iv.Dose, iv.Timing, iv.Notes = epID.String, dose.String, timing.String, notes.String
		iv.Timestamp, _ = episode.ParseTimestamp(ts)
		out = append(out, iv)
	}
	return out
}

// SaveObservation records a standalone observation.
func (s *Store) SaveObservation(ctx context.Context, category string, fields episode.Fields, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}
	obs := episode.Observation{
		ID:        shortID("obs"),
		Timestamp: now.UTC(),
		Category:  category,
		Value:     fields.Value,
		Notes:     fields.Notes,
	}
	if obs.Category == "" {
		obs.Category = "general"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := insertObservation(ctx, s.db, obs); err != nil {
		return "", fmt.Errorf("save observation: %w", err)
	}
	return obs.ID, nil
}

func insertObservation(ctx context.Context, db execer, obs episode.Observation) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO observations (id, timestamp, category, value, notes)
		VALUES (?, ?, ?, ?, ?)`,
		obs.ID, episode.FormatTimestamp(obs.Timestamp), obs.Category,
		nullString(obs.Value), nullString(obs.Notes))
	return err
}

// ListObservations returns observations matching f, newest first.
func (s *Store) ListObservations(ctx context.Context, f ObservationFilter) []episode.Observation {
	q := `SELECT id, timestamp, category, value, notes FROM observations WHERE 1 = 1`
	var args []any
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, f.Category)
	}
	if !f.Since.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, episode.FormatTimestamp(f.Since))
	}
	if !f.Until.IsZero() {
		q += ` AND timestamp < ?`
		args = append(args, episode.FormatTimestamp(f.Until))
	}
	q += ` ORDER BY timestamp DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logger.Warn("observation list failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []episode.Observation
	for rows.Next() {
		var (
			obs          episode.Observation
			ts           string
			value, notes sql.NullString
		)
		if err := rows.Scan(&obs.ID, &ts, &obs.Category, &value, &notes); err != nil {
			s.logger.Debug("skipping unreadable observation row", "error", err)
			continue
		}
		obs.Timestamp, _ = episode.ParseTimestamp(ts)
		obs.Value, obs.Notes = value.String, notes.String
		out = append(out, obs)
	}
	return out
}
