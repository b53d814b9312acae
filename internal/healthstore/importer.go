package healthstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nanaoosaki/health-companion/internal/episode"
)

// ImportStats counts what ImportJSON loaded and skipped.
type ImportStats struct {
	Episodes      int `json:"episodes"`
	Observations  int `json:"observations"`
	Interventions int `json:"interventions"`
	Skipped       int `json:"skipped"`
}

// legacyEpisode is an episode as written by the flat-file logger.
type legacyEpisode struct {
	EpisodeID       string  `json:"episode_id"`
	Condition       string  `json:"condition"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at"`
	Status          string  `json:"status"`
	CurrentSeverity *int    `json:"current_severity"`
	MaxSeverity     *int    `json:"max_severity"`
	SeverityPoints  []struct {
		TS    string `json:"ts"`
		Level int    `json:"level"`
	} `json:"severity_points"`
	NotesLog []struct {
		TS   string `json:"ts"`
		Text string `json:"text"`
	} `json:"notes_log"`
	Interventions []struct {
		TS     string  `json:"ts"`
		Type   string  `json:"type"`
		Dose   *string `json:"dose"`
		Timing *string `json:"timing"`
		Notes  *string `json:"notes"`
	} `json:"interventions"`
	LastUpdatedAt string `json:"last_updated_at"`
}

type legacyObservation struct {
	ObservationID string          `json:"observation_id"`
	Timestamp     string          `json:"timestamp"`
	Category      string          `json:"category"`
	Value         json.RawMessage `json:"value"`
	Notes         *string         `json:"notes"`
}

type legacyIntervention struct {
	InterventionID string  `json:"intervention_id"`
	EpisodeID      *string `json:"episode_id"`
	Timestamp      string  `json:"timestamp"`
	Type           string  `json:"type"`
	Dose           *string `json:"dose"`
	Timing         *string `json:"timing"`
	Notes          *string `json:"notes"`
}

// ImportJSON loads episodes.json, observations.json and interventions.json
// from dir. Missing or corrupt files are skipped with a warning, as are
// individual records without an ID or a parsable start time. Records are
// upserted by ID, so importing the same directory twice is harmless.
func (s *Store) ImportJSON(ctx context.Context, dir string) (ImportStats, error) {
	var stats ImportStats

	var episodes map[string]legacyEpisode
	if s.readLegacy(filepath.Join(dir, "episodes.json"), &episodes) {
		for key, le := range episodes {
			if le.EpisodeID == "" {
				le.EpisodeID = key
			}
			ep, ok := le.convert()
			if !ok {
				s.logger.Debug("skipping legacy episode", "episode_id", key)
				stats.Skipped++
				continue
			}
			if err := s.upsertEpisode(ctx, ep, le.LastUpdatedAt); err != nil {
				return stats, fmt.Errorf("import episode %s: %w", ep.ID, err)
			}
			stats.Episodes++
		}
	}

	var observations []legacyObservation
	if s.readLegacy(filepath.Join(dir, "observations.json"), &observations) {
		for _, lo := range observations {
			ts, ok := episode.ParseTimestamp(lo.Timestamp)
			if lo.ObservationID == "" || !ok {
				stats.Skipped++
				continue
			}
			obs := episode.Observation{
				ID:        lo.ObservationID,
				Timestamp: ts,
				Category:  lo.Category,
				Value:     rawString(lo.Value),
				Notes:     deref(lo.Notes),
			}
			if err := s.locked(func() error { return insertObservation(ctx, s.db, obs) }); err != nil {
				return stats, fmt.Errorf("import observation %s: %w", obs.ID, err)
			}
			stats.Observations++
		}
	}

	var interventions []legacyIntervention
	if s.readLegacy(filepath.Join(dir, "interventions.json"), &interventions) {
		for _, li := range interventions {
			ts, ok := episode.ParseTimestamp(li.Timestamp)
			if li.InterventionID == "" || !ok {
				stats.Skipped++
				continue
			}
			iv := episode.Intervention{
				ID:        li.InterventionID,
				EpisodeID: deref(li.EpisodeID),
				Timestamp: ts,
				Type:      li.Type,
				Dose:      deref(li.Dose),
				Timing:    deref(li.Timing),
				Notes:     deref(li.Notes),
			}
			if err := s.locked(func() error { return insertIntervention(ctx, s.db, iv) }); err != nil {
				return stats, fmt.Errorf("import intervention %s: %w", iv.ID, err)
			}
			stats.Interventions++
		}
	}

	s.logger.Info("legacy import finished", "dir", dir,
		"episodes", stats.Episodes, "observations", stats.Observations,
		"interventions", stats.Interventions, "skipped", stats.Skipped)
	return stats, nil
}

// readLegacy decodes path into v, reporting whether there was anything
// to import.
func (s *Store) readLegacy(path string, v any) bool {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("legacy file not present", "path", path)
		return false
	}
	if err != nil {
		s.logger.Warn("legacy file unreadable", "path", path, "error", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("legacy file corrupt, skipping", "path", path, "error", err)
		return false
	}
	return true
}

// upsertEpisode writes ep, keeping rawUpdated verbatim when it does not
// parse so the row is excluded from candidates instead of looking fresh.
func (s *Store) upsertEpisode(ctx context.Context, ep episode.Episode, rawUpdated string) error {
	return s.locked(func() error {
		if err := insertEpisode(ctx, s.db, ep, true); err != nil {
			return err
		}
		if ep.LastUpdatedAt.IsZero() && rawUpdated != "" {
			_, err := s.db.ExecContext(ctx, `UPDATE episodes SET last_updated_at = ? WHERE id = ?`, rawUpdated, ep.ID)
			return err
		}
		return nil
	})
}

func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (le legacyEpisode) convert() (episode.Episode, bool) {
	started, ok := episode.ParseTimestamp(le.StartedAt)
	if !ok || le.EpisodeID == "" {
		return episode.Episode{}, false
	}

	ep := episode.Episode{
		ID:              le.EpisodeID,
		Condition:       le.Condition,
		StartedAt:       started,
		Status:          episode.StatusOpen,
		CurrentSeverity: le.CurrentSeverity,
		PeakSeverity:    le.MaxSeverity,
		SeverityPoints:  []episode.SeverityPoint{},
		Notes:           []episode.Note{},
		Interventions:   []episode.Intervention{},
	}
	if le.Status == string(episode.StatusClosed) {
		ep.Status = episode.StatusClosed
	}
	if ep.Condition == "" {
		ep.Condition = "unspecified"
	}
	if le.EndedAt != nil {
		if t, ok := episode.ParseTimestamp(*le.EndedAt); ok {
			ep.EndedAt = &t
		}
	}
	if t, ok := episode.ParseTimestamp(le.LastUpdatedAt); ok {
		ep.LastUpdatedAt = t
	}

	for _, p := range le.SeverityPoints {
		t, _ := episode.ParseTimestamp(p.TS)
		ep.SeverityPoints = append(ep.SeverityPoints, episode.SeverityPoint{At: t, Level: p.Level})
		if ep.PeakSeverity == nil || p.Level > *ep.PeakSeverity {
			ep.PeakSeverity = episode.Intptr(p.Level)
		}
	}
	for _, n := range le.NotesLog {
		t, _ := episode.ParseTimestamp(n.TS)
		ep.Notes = append(ep.Notes, episode.Note{At: t, Text: n.Text})
	}
	for _, iv := range le.Interventions {
		t, _ := episode.ParseTimestamp(iv.TS)
		ep.Interventions = append(ep.Interventions, episode.Intervention{
			EpisodeID: le.EpisodeID,
			Timestamp: t,
			Type:      iv.Type,
			Dose:      deref(iv.Dose),
			Timing:    deref(iv.Timing),
			Notes:     deref(iv.Notes),
		})
	}
	return ep, true
}

// rawString renders a legacy value that may be a string, a number or
// null.
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

