package recall

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
	"github.com/nanaoosaki/health-companion/internal/ontology"
)

// MaxResults caps how many episodes a recall query returns.
const MaxResults = 50

// DefaultCorrelationWindow is how close an observation must be to an
// episode start to count as correlated.
const DefaultCorrelationWindow = 24 * time.Hour

// Reader is the read side of the health store.
type Reader interface {
	ListEpisodes(ctx context.Context, f healthstore.EpisodeFilter) []episode.Episode
	ListObservations(ctx context.Context, f healthstore.ObservationFilter) []episode.Observation
}

// EpisodeSummary is one episode as shown in a recall answer.
type EpisodeSummary struct {
	EpisodeID     string    `json:"episode_id"`
	Condition     string    `json:"condition"`
	StartedAt     time.Time `json:"started_at"`
	MaxSeverity   *int      `json:"max_severity,omitempty"`
	Interventions []string  `json:"interventions"`
}

// CorrelationDetail pairs one observation with one nearby episode.
type CorrelationDetail struct {
	ObservationAt   time.Time `json:"observation_timestamp"`
	EpisodeID       string    `json:"matched_episode_id"`
	HoursDifference float64   `json:"hours_difference"`
}

// CorrelationResult summarizes how often a keyword shows up near episodes
// of a condition.
type CorrelationResult struct {
	ObservationTotal        int                 `json:"observation_total"`
	EpisodesWithCorrelation int                 `json:"episodes_with_correlation"`
	CorrelationFound        bool                `json:"correlation_found"`
	Details                 []CorrelationDetail `json:"details"`
	Conclusion              string              `json:"conclusion"`
}

// Service runs recall queries against the store.
type Service struct {
	store  Reader
	logger *slog.Logger
}

// NewService creates a recall service.
func NewService(store Reader, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// FindEpisodes returns episodes of condition, widened to its related
// conditions, that started inside tr. Newest first.
func (s *Service) FindEpisodes(ctx context.Context, condition string, tr TimeRange) []EpisodeSummary {
	related := ontology.RelatedConditions(condition)
	if len(related) == 0 {
		return nil
	}
	return s.find(ctx, related, tr)
}

// FindAll returns every episode that started inside tr, newest first.
func (s *Service) FindAll(ctx context.Context, tr TimeRange) []EpisodeSummary {
	return s.find(ctx, nil, tr)
}

func (s *Service) find(ctx context.Context, conditions []string, tr TimeRange) []EpisodeSummary {
	eps := s.store.ListEpisodes(ctx, healthstore.EpisodeFilter{
		Conditions:    conditions,
		StartedAfter:  tr.Start,
		StartedBefore: endExclusive(tr.End),
		Limit:         MaxResults,
	})
	out := make([]EpisodeSummary, 0, len(eps))
	for _, ep := range eps {
		out = append(out, summarize(ep))
	}
	s.logger.Debug("recall query", "conditions", conditions, "range", tr.Label, "found", len(out))
	return out
}

func summarize(ep episode.Episode) EpisodeSummary {
	sum := EpisodeSummary{
		EpisodeID:     ep.ID,
		Condition:     ep.Condition,
		StartedAt:     ep.StartedAt,
		MaxSeverity:   ep.PeakSeverity,
		Interventions: []string{},
	}
	if sum.MaxSeverity == nil {
		sum.MaxSeverity = ep.CurrentSeverity
	}
	for _, iv := range ep.Interventions {
		t := iv.Type
		if t == "" {
			t = "unknown"
		}
		sum.Interventions = append(sum.Interventions, t)
	}
	return sum
}

// Correlate looks for observations mentioning keyword (in notes, value or
// category) inside tr that fall within window of the start of an episode
// of condition. Episodes are searched in tr widened by window on both
// sides.
func (s *Service) Correlate(ctx context.Context, keyword, condition string, tr TimeRange, window time.Duration) CorrelationResult {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	hours := int(window.Hours())

	normalized, ok := ontology.Canonical(condition)
	if !ok {
		return CorrelationResult{
			Details:    []CorrelationDetail{},
			Conclusion: fmt.Sprintf("Could not normalize condition '%s' to a known condition family.", condition),
		}
	}

	var matching []episode.Observation
	for _, obs := range s.store.ListObservations(ctx, healthstore.ObservationFilter{
		Since: tr.Start,
		Until: endExclusive(tr.End),
	}) {
		if containsFold(obs.Notes, keyword) || containsFold(obs.Value, keyword) || containsFold(obs.Category, keyword) {
			matching = append(matching, obs)
		}
	}

	eps := s.store.ListEpisodes(ctx, healthstore.EpisodeFilter{
		Conditions:    []string{normalized},
		StartedAfter:  tr.Start.Add(-window),
		StartedBefore: endExclusive(tr.End.Add(window)),
	})

	res := CorrelationResult{ObservationTotal: len(matching), Details: []CorrelationDetail{}}
	linked := make(map[string]bool)
	for _, obs := range matching {
		for _, ep := range eps {
			diff := math.Abs(obs.Timestamp.Sub(ep.StartedAt).Hours())
			if diff <= window.Hours() {
				res.Details = append(res.Details, CorrelationDetail{
					ObservationAt:   obs.Timestamp,
					EpisodeID:       ep.ID,
					HoursDifference: diff,
				})
				linked[ep.ID] = true
			}
		}
	}
	res.EpisodesWithCorrelation = len(linked)
	res.CorrelationFound = len(res.Details) > 0

	switch {
	case res.ObservationTotal == 0:
		res.Conclusion = fmt.Sprintf("No observations containing '%s' found in the specified time period.", keyword)
	case !res.CorrelationFound:
		res.Conclusion = fmt.Sprintf("Found %d observation(s) containing '%s', but none were within %d hours of a %s episode.",
			res.ObservationTotal, keyword, hours, normalized)
	default:
		rate := float64(res.EpisodesWithCorrelation) / float64(len(eps))
		res.Conclusion = fmt.Sprintf("Found %d correlation(s): %d observation(s) containing '%s' were within %d hours of %d different %s episode(s). This suggests a potential correlation (rate: %.1f%%).",
			len(res.Details), res.ObservationTotal, keyword, hours, res.EpisodesWithCorrelation, normalized, rate*100)
	}
	return res
}

// endExclusive turns an inclusive end into the exclusive bound the store
// expects. Stored timestamps have second precision.
func endExclusive(t time.Time) time.Time {
	return t.Truncate(time.Second).Add(time.Second)
}

func containsFold(s, sub string) bool {
	return sub != "" && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
