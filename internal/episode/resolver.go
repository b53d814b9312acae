package episode

import (
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/ontology"
)

// ConfidenceThreshold is the extraction confidence below which the
// resolver refuses to guess and asks the user instead.
const ConfidenceThreshold = 0.6

// DefaultLinkingWindow is how recently an episode must have been updated
// to be continued without asking.
const DefaultLinkingWindow = 12 * time.Hour

// maxClarifyOptions caps the "update this episode" choices offered.
const maxClarifyOptions = 3

// continuitySignals are phrases taken as evidence that the user is still
// describing an episode already in progress.
var continuitySignals = []string{
	"still", "ongoing", "continues", "same", "it's", "now",
	"down to", "up to", "currently", "remains", "persists",
}

// Action is the resolver's verdict.
type Action string

const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionObservation Action = "observation"
	ActionQuery       Action = "query"
	ActionClarify     Action = "clarify"
)

// Option is one multiple-choice answer in a clarification.
type Option struct {
	Label       string `json:"label"`
	Action      Action `json:"action"`
	EpisodeID   string `json:"episode_id,omitempty"`
	Description string `json:"description"`
}

// Clarification asks the user to pick between episodes.
type Clarification struct {
	Message string   `json:"message"`
	Options []Option `json:"options"`
}

// Resolution is the resolver output. EpisodeID is set only for updates,
// Clarification only for clarify.
type Resolution struct {
	Action             Action         `json:"action"`
	EpisodeID          string         `json:"episode_id,omitempty"`
	NeedsClarification bool           `json:"needs_clarification"`
	Clarification      *Clarification `json:"clarification,omitempty"`
}

// ResolveInput bundles everything the resolver looks at. Candidates must
// be ordered most-recently-updated first.
type ResolveInput struct {
	Extraction Extraction
	Candidates []Candidate
	// SessionEpisodeID is the episode the current conversation last
	// touched, used as a sticky hint.
	SessionEpisodeID string
	Now              time.Time
	// Window overrides DefaultLinkingWindow when positive.
	Window time.Duration
}

// Resolve decides what to do with an extraction. It has no side effects
// and no clock of its own: the same input always yields the same output.
func Resolve(in ResolveInput) Resolution {
	ex := in.Extraction
	window := in.Window
	if window <= 0 {
		window = DefaultLinkingWindow
	}

	switch ex.Intent {
	case IntentObservation:
		return Resolution{Action: ActionObservation}
	case IntentQuery:
		return Resolution{Action: ActionQuery}
	}

	if ex.Confidence < ConfidenceThreshold {
		if len(in.Candidates) > 0 {
			return clarify(in.Candidates, ex.Condition)
		}
		return Resolution{Action: ActionCreate}
	}

	best := bestCandidate(ex.Condition, in.Candidates, ex.EpisodeID, in.SessionEpisodeID)

	if ex.Intent == IntentIntervention {
		switch {
		case best != nil:
			return update(best.EpisodeID)
		case ex.Condition != "":
			return Resolution{Action: ActionCreate}
		default:
			return Resolution{Action: ActionObservation}
		}
	}

	switch ex.LinkStrategy {
	case LinkSameEpisode:
		if best != nil && IsRecent(*best, in.Now, window) {
			return update(best.EpisodeID)
		}
		if best != nil && len(in.Candidates) > 1 {
			return clarify(in.Candidates, ex.Condition)
		}
		return Resolution{Action: ActionCreate}

	case LinkNewEpisode:
		return Resolution{Action: ActionCreate}

	default:
		// Unlike same_episode, an unknown strategy only continues an
		// episode on an explicit continuity phrase.
		if best != nil && IsRecent(*best, in.Now, window) && HasContinuitySignal(ex.Fields.Notes) {
			return update(best.EpisodeID)
		}
		if len(in.Candidates) > 1 {
			return clarify(in.Candidates, ex.Condition)
		}
		return Resolution{Action: ActionCreate}
	}
}

func update(id string) Resolution {
	return Resolution{Action: ActionUpdate, EpisodeID: id}
}

func clarify(candidates []Candidate, condition string) Resolution {
	c := BuildClarification(candidates, condition)
	return Resolution{Action: ActionClarify, NeedsClarification: true, Clarification: &c}
}

// bestCandidate picks, in priority order: the extractor's suggested
// episode, the session's sticky episode, the newest candidate whose
// condition matches, and finally the newest candidate overall.
func bestCandidate(condition string, candidates []Candidate, suggestedID, sessionID string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	if c := findByID(candidates, suggestedID); c != nil {
		return c
	}
	if c := findByID(candidates, sessionID); c != nil {
		return c
	}
	if condition != "" {
		for i := range candidates {
			if ontology.ConditionsMatch(condition, candidates[i].Condition) {
				return &candidates[i]
			}
		}
	}
	return &candidates[0]
}

func findByID(candidates []Candidate, id string) *Candidate {
	if id == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].EpisodeID == id {
			return &candidates[i]
		}
	}
	return nil
}

// IsRecent reports whether c was updated within window of now. The
// boundary is inclusive. An unparsable timestamp is never recent.
func IsRecent(c Candidate, now time.Time, window time.Duration) bool {
	last, ok := ParseTimestamp(c.LastUpdatedAt)
	if !ok {
		return false
	}
	return now.Sub(last) <= window
}

// HasContinuitySignal reports whether text contains a continuity phrase.
func HasContinuitySignal(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(text)
	for _, w := range continuitySignals {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// BuildClarification lists an update option for each of the first three
// candidates whose condition matches, followed by a create option.
func BuildClarification(candidates []Candidate, condition string) Clarification {
	subject := condition
	if subject == "" {
		subject = "health information"
	}
	newLabel := condition
	if newLabel == "" {
		newLabel = "episode"
	}

	var options []Option
	limit := min(len(candidates), maxClarifyOptions)
	for _, c := range candidates[:limit] {
		if condition == "" || !ontology.ConditionsMatch(condition, c.Condition) {
			continue
		}
		options = append(options, Option{
			Label:       "Update " + c.Condition + " from " + datePart(c.StartedAt),
			Action:      ActionUpdate,
			EpisodeID:   c.EpisodeID,
			Description: c.Salient,
		})
	}
	options = append(options, Option{
		Label:       "Create new " + newLabel,
		Action:      ActionCreate,
		Description: "Start tracking a new episode",
	})

	return Clarification{
		Message: "I see you mentioned " + subject + ". Should I:",
		Options: options,
	}
}

func datePart(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

// timestampLayouts are tried in order by ParseTimestamp. Stored values
// are RFC 3339; the naive forms cover records written by older tools.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are
// taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way candidates and stored rows carry it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
