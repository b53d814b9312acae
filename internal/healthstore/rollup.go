package healthstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
)

// DailyHistory is the per-day summary of logged health data. Pain figures
// come from the peak severity of episodes that started that day.
type DailyHistory struct {
	Date         string   `json:"date"`
	AvgPain      *float64 `json:"avg_pain,omitempty"`
	MaxPain      *int     `json:"max_pain,omitempty"`
	Episodes     int      `json:"episodes"`
	Observations int      `json:"observations"`
}

// DailyRollup compiles and stores the summary for the UTC calendar day
// containing day. Only episodes with a recorded peak severity count
// towards Episodes.
func (s *Store) DailyRollup(ctx context.Context, day time.Time) (DailyHistory, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	h := DailyHistory{Date: start.Format(time.DateOnly)}

	var (
		count int
		avg   sql.NullFloat64
		peak  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(peak_severity), MAX(peak_severity)
		FROM episodes
		WHERE started_at >= ? AND started_at < ? AND peak_severity IS NOT NULL`,
		episode.FormatTimestamp(start), episode.FormatTimestamp(end),
	).Scan(&count, &avg, &peak)
	if err != nil {
		return h, fmt.Errorf("rollup episodes: %w", err)
	}
	h.Episodes = count
	if avg.Valid {
		h.AvgPain = &avg.Float64
	}
	h.MaxPain = intPtr(peak)

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM observations WHERE timestamp >= ? AND timestamp < ?`,
		episode.FormatTimestamp(start), episode.FormatTimestamp(end),
	).Scan(&h.Observations)
	if err != nil {
		return h, fmt.Errorf("rollup observations: %w", err)
	}

	var avgCol sql.NullFloat64
	if h.AvgPain != nil {
		avgCol = sql.NullFloat64{Float64: *h.AvgPain, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_history (date, avg_pain, max_pain, episodes, observations)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			avg_pain = excluded.avg_pain,
			max_pain = excluded.max_pain,
			episodes = excluded.episodes,
			observations = excluded.observations`,
		h.Date, avgCol, nullInt(h.MaxPain), h.Episodes, h.Observations)
	if err != nil {
		return h, fmt.Errorf("store rollup: %w", err)
	}
	return h, nil
}

// History returns stored daily summaries between from and to (inclusive
// YYYY-MM-DD dates; empty means unbounded), oldest first.
func (s *Store) History(ctx context.Context, from, to string) []DailyHistory {
	q := `SELECT date, avg_pain, max_pain, episodes, observations FROM daily_history WHERE 1 = 1`
	var args []any
	if from != "" {
		q += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		q += ` AND date <= ?`
		args = append(args, to)
	}
	q += ` ORDER BY date`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logger.Warn("history query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []DailyHistory
	for rows.Next() {
		var (
			h    DailyHistory
			avg  sql.NullFloat64
			peak sql.NullInt64
		)
		if err := rows.Scan(&h.Date, &avg, &peak, &h.Episodes, &h.Observations); err != nil {
			s.logger.Debug("skipping unreadable history row", "error", err)
			continue
		}
		if avg.Valid {
			h.AvgPain = &avg.Float64
		}
		h.MaxPain = intPtr(peak)
		out = append(out, h)
	}
	return out
}
