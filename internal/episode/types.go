// Package episode defines the health-tracking domain model and the
// deterministic resolver that decides whether new data continues an
// existing episode, starts a new one, or needs the user to choose.
package episode

import "time"

// Status is the lifecycle state of an episode.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// SeverityPoint is one recorded severity reading.
type SeverityPoint struct {
	At    time.Time `json:"ts"`
	Level int       `json:"level"`
}

// Note is one free-text entry in an episode's log.
type Note struct {
	At   time.Time `json:"ts"`
	Text string    `json:"text"`
}

// Episode is one continuous health event, such as a single migraine
// attack. Episodes are never deleted; they are closed or age out of the
// candidate window.
type Episode struct {
	ID              string          `json:"episode_id"`
	Condition       string          `json:"condition"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	Status          Status          `json:"status"`
	CurrentSeverity *int            `json:"current_severity,omitempty"`
	PeakSeverity    *int            `json:"peak_severity,omitempty"`
	SeverityPoints  []SeverityPoint `json:"severity_points"`
	Notes           []Note          `json:"notes_log"`
	Interventions   []Intervention  `json:"interventions"`
	LastUpdatedAt   time.Time       `json:"last_updated_at"`
}

// Candidate is the read-only projection of an open episode offered to
// the resolver. Timestamps stay as ISO-8601 strings because candidates
// cross the LLM boundary and a malformed value must degrade to "not
// recent" rather than fail the turn.
type Candidate struct {
	EpisodeID       string `json:"episode_id"`
	Condition       string `json:"condition"`
	StartedAt       string `json:"started_at"`
	LastUpdatedAt   string `json:"last_updated_at"`
	CurrentSeverity *int   `json:"current_severity,omitempty"`
	Salient         string `json:"salient"`
}

// Observation is a standalone health fact not tied to an episode.
type Observation struct {
	ID        string    `json:"observation_id"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Value     string    `json:"value,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Intervention is a treatment or action taken during an episode.
type Intervention struct {
	ID        string    `json:"intervention_id,omitempty"`
	EpisodeID string    `json:"episode_id,omitempty"`
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Dose      string    `json:"dose,omitempty"`
	Timing    string    `json:"timing,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Fields carries the health data extracted from one message.
type Fields struct {
	Severity  *int     `json:"severity,omitempty"`
	Location  string   `json:"location,omitempty"`
	Triggers  []string `json:"triggers,omitempty"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Value     string   `json:"value,omitempty"`
}

// Intptr returns a pointer to n. Handy for optional severities.
func Intptr(n int) *int { return &n }
