package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/llm"
	"github.com/nanaoosaki/health-companion/internal/ontology"
	"github.com/nanaoosaki/health-companion/internal/prompts"
	"github.com/nanaoosaki/health-companion/internal/session"
)

// SnapshotWindow is how far back the active episode is looked up.
const SnapshotWindow = 72 * time.Hour

// EmergencyReply is returned instead of coaching when a message describes
// a possible emergency.
const EmergencyReply = "This sounds like it could be serious. Please contact emergency services (911) or go to the nearest emergency department now. If you're thinking about harming yourself, call or text 988 to reach the crisis line. I'm not able to help with emergencies, but I'll be here afterwards."

// CautionNote is appended when a message mentions urgent care without
// being an emergency.
const CautionNote = "Warning: This advice is for informational purposes only and should not replace professional medical consultation. If you have severe symptoms or concerns, please contact your healthcare provider."

var (
	emergencyTerms = []string{
		"emergency", "911", "chest pain", "difficulty breathing", "unconscious",
		"seizure", "suicidal", "self-harm", "overdose", "allergic reaction",
	}
	cautionTerms = []string{"urgent", "severe", "hospital", "doctor"}
)

// Reader is the part of the health store the coach looks at.
type Reader interface {
	FetchCandidates(ctx context.Context, window time.Duration, now time.Time) []episode.Candidate
	GetEpisode(ctx context.Context, id string) (*episode.Episode, error)
}

// Handler coaches the user through the current episode.
type Handler struct {
	client llm.Client
	model  string
	store  Reader
	logger *slog.Logger

	now func() time.Time
}

// NewHandler creates a coach that calls model through client.
func NewHandler(client llm.Client, model string, store Reader, logger *slog.Logger) *Handler {
	return &Handler{client: client, model: model, store: store, logger: logger, now: time.Now}
}

// Handle returns coaching for message. Model failures fall back to canned
// tips, so the error is always nil.
func (h *Handler) Handle(ctx context.Context, _ *session.Session, message string) (string, error) {
	lower := strings.ToLower(message)
	if containsAny(lower, emergencyTerms) {
		h.logger.Warn("emergency language detected, skipping coaching")
		return EmergencyReply, nil
	}

	snap := h.Snapshot(ctx, message)
	tips := Tips(Topic(message), 2)

	system, user := prompts.CoachMessages(message, snap, tips)
	resp, err := h.client.Chat(ctx, h.model, []llm.Message{llm.System(system), llm.User(user)},
		llm.CallOptions{Temperature: 0.4, MaxTokens: 400})

	var advice string
	if err != nil || strings.TrimSpace(resp.Message.Content) == "" {
		h.logger.Warn("coach model unavailable, using fallback tips", "error", err)
		advice = fallbackAdvice(snap, tips)
	} else {
		advice = resp.Message.Content
	}

	advice = ApplyGuardrails(advice)
	if containsAny(lower, cautionTerms) {
		advice += "\n\n" + CautionNote
	}
	return advice, nil
}

// Snapshot summarizes the most recently updated open episode, preferring
// one whose condition matches the message. nil when nothing is open.
func (h *Handler) Snapshot(ctx context.Context, message string) *prompts.CoachSnapshot {
	cands := h.store.FetchCandidates(ctx, SnapshotWindow, h.now())
	if len(cands) == 0 {
		return nil
	}

	pick := cands[0]
	if cond, ok := ontology.InferCondition(message); ok {
		for _, c := range cands {
			if ontology.ConditionsMatch(c.Condition, cond) {
				pick = c
				break
			}
		}
	}

	snap := &prompts.CoachSnapshot{
		Condition: pick.Condition,
		Severity:  pick.CurrentSeverity,
		StartedAt: pick.StartedAt,
		Salient:   pick.Salient,
	}
	if ep, err := h.store.GetEpisode(ctx, pick.EpisodeID); err == nil {
		for _, iv := range ep.Interventions {
			snap.Interventions = append(snap.Interventions, iv.Type)
		}
	}
	return snap
}

func fallbackAdvice(snap *prompts.CoachSnapshot, tips []string) string {
	var b strings.Builder
	if snap != nil {
		fmt.Fprintf(&b, "I'm sorry your %s is giving you trouble. A few things that often help:", strings.ReplaceAll(snap.Condition, "_", " "))
	} else {
		b.WriteString("I'm sorry you're not feeling well. A few things that often help:")
	}
	for _, t := range tips {
		fmt.Fprintf(&b, "\n- %s", t)
	}
	return b.String()
}
