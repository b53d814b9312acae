package healthlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
	"github.com/nanaoosaki/health-companion/internal/session"
)

// DefaultCandidateWindow is how far back open episodes are offered to the
// extractor and resolver.
const DefaultCandidateWindow = 24 * time.Hour

// Storage is the part of the health store the workflow writes through.
type Storage interface {
	FetchCandidates(ctx context.Context, window time.Duration, now time.Time) []episode.Candidate
	CreateEpisode(ctx context.Context, condition string, fields episode.Fields, now time.Time) (string, error)
	UpdateEpisode(ctx context.Context, id string, fields episode.Fields, now time.Time) bool
	AddIntervention(ctx context.Context, episodeID string, in episode.InterventionInput, now time.Time) (string, error)
	SaveObservation(ctx context.Context, category string, fields episode.Fields, now time.Time) (string, error)
	AppendEvent(ctx context.Context, ev healthstore.Event) (string, error)
	EventSeen(ctx context.Context, text string, at time.Time) bool
}

// Config tunes the workflow.
type Config struct {
	CandidateWindow time.Duration
	LinkingWindow   time.Duration
	// Model is recorded in the audit trail.
	Model string
}

// Result is the outcome of one logging turn.
type Result struct {
	Action          episode.Action         `json:"action"`
	EpisodeID       string                 `json:"episode_id,omitempty"`
	ObservationIDs  []string               `json:"observation_ids,omitempty"`
	InterventionIDs []string               `json:"intervention_ids,omitempty"`
	Extraction      *episode.Extraction    `json:"extraction,omitempty"`
	Clarification   *episode.Clarification `json:"clarification,omitempty"`
	Reply           string                 `json:"reply"`
	// Duplicate is set when the same message was already handled this
	// minute and nothing was written.
	Duplicate bool `json:"duplicate,omitempty"`
	// Failed is set when nothing could be stored.
	Failed bool `json:"failed,omitempty"`
}

// Workflow runs extract, resolve and apply for health messages.
type Workflow struct {
	logger    *slog.Logger
	store     Storage
	extractor *Extractor
	config    Config

	now func() time.Time
}

// NewWorkflow creates a logging workflow.
func NewWorkflow(logger *slog.Logger, store Storage, extractor *Extractor, config Config) *Workflow {
	if config.CandidateWindow <= 0 {
		config.CandidateWindow = DefaultCandidateWindow
	}
	if config.LinkingWindow <= 0 {
		config.LinkingWindow = episode.DefaultLinkingWindow
	}
	return &Workflow{
		logger:    logger,
		store:     store,
		extractor: extractor,
		config:    config,
		now:       time.Now,
	}
}

// Log records the health information in message. A clarify outcome is
// parked on the session until ResolvePending answers it.
func (w *Workflow) Log(ctx context.Context, sess *session.Session, message string) Result {
	now := w.now().UTC()

	if w.store.EventSeen(ctx, message, now) {
		w.logger.Info("duplicate message ignored", "session", sess.ID)
		return Result{Duplicate: true, Reply: "I've already recorded that."}
	}

	candidates := w.store.FetchCandidates(ctx, w.config.CandidateWindow, now)

	ex, raw, err := w.extractor.Extract(ctx, message, sess.HistoryLines(), candidates)
	if err != nil {
		w.logger.Warn("extraction failed, saving as note", "error", err)
		return w.saveRawNote(ctx, message, now)
	}

	res := episode.Resolve(episode.ResolveInput{
		Extraction:       ex,
		Candidates:       candidates,
		SessionEpisodeID: sess.OpenEpisode(),
		Now:              now,
		Window:           w.config.LinkingWindow,
	})
	w.logger.Info("episode resolved",
		"session", sess.ID,
		"action", res.Action,
		"episode_id", res.EpisodeID,
		"intent", ex.Intent,
		"confidence", ex.Confidence,
	)

	if res.Action == episode.ActionClarify {
		sess.SetPending(&session.PendingClarification{
			Message:       message,
			Extraction:    ex,
			Clarification: *res.Clarification,
			CreatedAt:     now,
		})
		w.audit(ctx, message, raw, ex, res.Action, "", now)
		return Result{
			Action:        episode.ActionClarify,
			Extraction:    &ex,
			Clarification: res.Clarification,
			Reply:         FormatClarification(*res.Clarification),
		}
	}

	out := w.apply(ctx, sess, ex, res, candidates, now)
	w.audit(ctx, message, raw, ex, out.Action, out.EpisodeID, now)
	return out
}

// ResolvePending answers the session's outstanding clarification with
// the 1-based option choice.
func (w *Workflow) ResolvePending(ctx context.Context, sess *session.Session, choice int) Result {
	p := sess.Pending()
	if p == nil {
		return Result{Reply: "There's no open question to answer right now."}
	}
	opts := p.Clarification.Options
	if choice < 1 || choice > len(opts) {
		return Result{
			Action:        episode.ActionClarify,
			Clarification: &p.Clarification,
			Reply:         fmt.Sprintf("Please pick a number between 1 and %d.\n\n%s", len(opts), FormatClarification(p.Clarification)),
		}
	}
	sess.TakePending()

	now := w.now().UTC()
	opt := opts[choice-1]
	res := episode.Resolution{Action: opt.Action, EpisodeID: opt.EpisodeID}
	candidates := w.store.FetchCandidates(ctx, w.config.CandidateWindow, now)

	w.logger.Info("clarification resolved", "session", sess.ID, "choice", choice, "action", opt.Action, "episode_id", opt.EpisodeID)

	out := w.apply(ctx, sess, p.Extraction, res, candidates, now)
	raw, _ := json.Marshal(p.Extraction)
	w.audit(ctx, fmt.Sprintf("/resolve %d: %s", choice, p.Message), raw, p.Extraction, out.Action, out.EpisodeID, now)
	return out
}

// CancelPending drops the outstanding clarification. It reports whether
// there was one.
func (w *Workflow) CancelPending(sess *session.Session) bool {
	return sess.TakePending() != nil
}

func (w *Workflow) apply(ctx context.Context, sess *session.Session, ex episode.Extraction, res episode.Resolution, candidates []episode.Candidate, now time.Time) Result {
	out := Result{Action: res.Action, Extraction: &ex}

	switch res.Action {
	case episode.ActionQuery:
		out.Reply = "That sounds like a question about your history."
		return out

	case episode.ActionObservation:
		category := ex.Condition
		if category == "" {
			category = "general"
		}
		if len(ex.Interventions) == 0 || ex.Intent == episode.IntentObservation {
			id, err := w.store.SaveObservation(ctx, category, ex.Fields, now)
			if err != nil {
				w.logger.Error("observation save failed", "error", err)
				return failed(out)
			}
			out.ObservationIDs = append(out.ObservationIDs, id)
		}
		// With no episode to attach to, interventions are kept as
		// observations of their own.
		for _, iv := range ex.Interventions {
			id, err := w.store.SaveObservation(ctx, "intervention", episode.Fields{
				Value: iv.Type,
				Notes: joinNonEmpty(", ", iv.Dose, iv.Timing, iv.Notes),
			}, now)
			if err != nil {
				w.logger.Error("intervention observation save failed", "error", err)
				continue
			}
			out.ObservationIDs = append(out.ObservationIDs, id)
		}
		if ex.Intent == episode.IntentIntervention && len(ex.Interventions) > 0 {
			out.Reply = interventionReply(ex)
		} else {
			out.Reply = fmt.Sprintf("I've logged that information about your %s.", strings.ReplaceAll(category, "_", " "))
		}
		return out

	case episode.ActionUpdate:
		if w.store.UpdateEpisode(ctx, res.EpisodeID, ex.Fields, now) {
			out.EpisodeID = res.EpisodeID
			break
		}
		w.logger.Warn("update target missing, starting a new episode", "episode_id", res.EpisodeID)
		out.Action = episode.ActionCreate
		fallthrough

	case episode.ActionCreate:
		id, err := w.store.CreateEpisode(ctx, ex.Condition, ex.Fields, now)
		if err != nil {
			w.logger.Error("episode create failed", "error", err)
			return failed(out)
		}
		out.EpisodeID = id
	}

	for _, iv := range ex.Interventions {
		if strings.TrimSpace(iv.Type) == "" {
			continue
		}
		id, err := w.store.AddIntervention(ctx, out.EpisodeID, iv, now)
		if err != nil {
			w.logger.Error("intervention save failed", "episode_id", out.EpisodeID, "error", err)
			continue
		}
		out.InterventionIDs = append(out.InterventionIDs, id)
	}

	sess.SetOpenEpisode(out.EpisodeID)
	out.Reply = replyFor(ex, out, conditionOf(out.EpisodeID, ex.Condition, candidates))
	return out
}

// saveRawNote keeps the user's words when extraction is impossible.
func (w *Workflow) saveRawNote(ctx context.Context, message string, now time.Time) Result {
	out := Result{Action: episode.ActionObservation}
	id, err := w.store.SaveObservation(ctx, "general", episode.Fields{Notes: message}, now)
	if err != nil {
		w.logger.Error("note save failed", "error", err)
		return failed(out)
	}
	out.ObservationIDs = []string{id}
	out.Reply = "I couldn't quite structure that, but I've saved it as a note."
	w.audit(ctx, message, nil, episode.Extraction{}, out.Action, "", now)
	return out
}

func (w *Workflow) audit(ctx context.Context, message string, raw []byte, ex episode.Extraction, action episode.Action, episodeID string, now time.Time) {
	ev := healthstore.Event{
		Timestamp:  now,
		UserText:   message,
		ParsedData: raw,
		Action:     string(action),
		Model:      w.config.Model,
		EpisodeID:  episodeID,
	}
	if ex.Intent != "" {
		conf := ex.Confidence
		ev.Confidence = &conf
	}
	if _, err := w.store.AppendEvent(ctx, ev); err != nil {
		if errors.Is(err, healthstore.ErrDuplicateEvent) {
			w.logger.Debug("audit event already recorded")
			return
		}
		w.logger.Warn("audit event failed", "error", err)
	}
}

func failed(out Result) Result {
	out.Failed = true
	out.Reply = "Sorry, I couldn't save that just now. Please try again in a moment."
	return out
}

func conditionOf(episodeID, fallback string, candidates []episode.Candidate) string {
	for _, c := range candidates {
		if c.EpisodeID == episodeID && c.Condition != "" {
			return c.Condition
		}
	}
	if fallback != "" {
		return fallback
	}
	return "symptoms"
}

func replyFor(ex episode.Extraction, out Result, condition string) string {
	label := strings.ReplaceAll(condition, "_", " ")
	if ex.Intent == episode.IntentIntervention && len(ex.Interventions) > 0 {
		return interventionReply(ex)
	}
	if out.Action == episode.ActionUpdate {
		return fmt.Sprintf("Thanks for the update on your %s. I've noted the changes.", label)
	}
	if ex.Fields.Severity != nil {
		return fmt.Sprintf("I've started tracking your %s (severity %d/10). Hope you feel better soon.", label, *ex.Fields.Severity)
	}
	return fmt.Sprintf("I've started tracking your %s. Hope you feel better soon.", label)
}

func interventionReply(ex episode.Extraction) string {
	return fmt.Sprintf("Got it - I've recorded the %s. Hope it helps!", ex.Interventions[0].Type)
}

// FormatClarification renders a clarification as a numbered question.
func FormatClarification(c episode.Clarification) string {
	var b strings.Builder
	b.WriteString(c.Message)
	for i, o := range c.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o.Label)
		if o.Description != "" {
			fmt.Fprintf(&b, " (%s)", o.Description)
		}
	}
	b.WriteString("\n\nReply with /resolve <number>, or /cancel to skip.")
	return b.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
