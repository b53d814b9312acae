// Package router classifies user messages into specialist intents.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nanaoosaki/health-companion/internal/llm"
	"github.com/nanaoosaki/health-companion/internal/prompts"
)

// Intent names the specialist that should handle a message.
type Intent string

const (
	IntentLog     Intent = "log"
	IntentRecall  Intent = "recall"
	IntentCoach   Intent = "coach"
	IntentProfile Intent = "profile"
	IntentControl Intent = "control"
	IntentUnknown Intent = "unknown"
)

// HeuristicThreshold is the confidence below which keyword cues may
// override the model's primary intent.
const HeuristicThreshold = 0.7

// Confidence assigned when the model could not be used.
const (
	fallbackUnstructured = 0.5
	fallbackError        = 0.3
)

var (
	recallCues = []string{"when", "did i", "show me", "history", "last time"}
	coachCues  = []string{"what should i do", "help", "advice", "recommend"}
)

// Decision records how a message was classified.
type Decision struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Input analysis
	MessageLength int    `json:"message_length"`
	HistoryTurns  int    `json:"history_turns"`
	Model         string `json:"model"`

	// Model verdict
	Primary       Intent  `json:"primary"`
	Secondary     Intent  `json:"secondary,omitempty"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
	ProfileAction string  `json:"profile_action,omitempty"`
	// Fallback is set when the model failed and a safe default was used.
	Fallback bool `json:"fallback,omitempty"`

	// Heuristic pass
	Overridden     bool   `json:"overridden"`
	OverrideReason string `json:"override_reason,omitempty"`
	FinalIntent    Intent `json:"final_intent"`

	LatencyMs int64 `json:"latency_ms,omitempty"`
}

// Config holds router configuration.
type Config struct {
	Model       string // Model used for classification
	MaxAuditLog int    // How many decisions to keep in memory
}

// Router classifies messages and keeps an audit trail of its decisions.
type Router struct {
	logger *slog.Logger
	client llm.Client
	config Config

	mu       sync.RWMutex
	auditLog []Decision
	stats    Stats
}

// Stats tracks routing statistics.
type Stats struct {
	TotalRequests int64            `json:"total_requests"`
	IntentCounts  map[string]int64 `json:"intent_counts"`
	Overrides     int64            `json:"overrides"`
	Fallbacks     int64            `json:"fallbacks"`
	AvgLatencyMs  int64            `json:"avg_latency_ms"`
}

// NewRouter creates a router that classifies with client.
func NewRouter(logger *slog.Logger, client llm.Client, config Config) *Router {
	if config.MaxAuditLog <= 0 {
		config.MaxAuditLog = 1000
	}
	return &Router{
		logger:   logger,
		client:   client,
		config:   config,
		auditLog: make([]Decision, 0, config.MaxAuditLog),
		stats:    Stats{IntentCounts: make(map[string]int64)},
	}
}

// Route classifies message, applies the keyword heuristics and records
// the decision. It never fails; model errors produce a low-confidence
// log decision.
func (r *Router) Route(ctx context.Context, message string, history []string) Decision {
	start := time.Now()
	d := r.Classify(ctx, message, history)
	d = ApplyHeuristics(d, message)
	d.LatencyMs = time.Since(start).Milliseconds()

	r.recordDecision(d)

	r.logger.Info("intent routed",
		"request_id", d.RequestID,
		"primary", d.Primary,
		"final", d.FinalIntent,
		"confidence", d.Confidence,
		"overridden", d.Overridden,
	)
	return d
}

// routerReply is the JSON contract of the classification prompt.
type routerReply struct {
	Primary       string   `json:"primary"`
	Secondary     *string  `json:"secondary"`
	Confidence    *float64 `json:"confidence"`
	Rationale     string   `json:"rationale"`
	ProfileAction *string  `json:"profile_action"`
}

// Classify asks the model for an intent. The heuristic override is not
// applied; FinalIntent equals Primary.
func (r *Router) Classify(ctx context.Context, message string, history []string) Decision {
	d := Decision{
		RequestID:     uuid.NewString(),
		Timestamp:     time.Now(),
		MessageLength: len(message),
		HistoryTurns:  len(history),
		Model:         r.config.Model,
	}

	system, user := prompts.RouterMessages(message, history)
	resp, err := r.client.Chat(ctx, r.config.Model, []llm.Message{llm.System(system), llm.User(user)},
		llm.CallOptions{JSON: true, Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		r.logger.Warn("intent classification failed", "error", err)
		return fallback(d, fallbackError, fmt.Sprintf("Router error, defaulting to log: %v", err))
	}

	var reply routerReply
	if err := llm.DecodeJSON(resp.Message.Content, &reply); err != nil {
		r.logger.Warn("unstructured router reply", "error", err)
		return fallback(d, fallbackUnstructured, "Router returned unstructured output, defaulting to log")
	}

	primary, action := parseIntent(reply.Primary)
	if action == "" && reply.ProfileAction != nil {
		action = strings.TrimSpace(*reply.ProfileAction)
	}
	d.Primary = primary
	d.ProfileAction = action
	d.Rationale = reply.Rationale
	if reply.Confidence != nil {
		d.Confidence = min(max(*reply.Confidence, 0), 1)
	}
	if reply.Secondary != nil {
		if sec, _ := parseIntent(*reply.Secondary); sec != IntentUnknown && sec != primary {
			d.Secondary = sec
		}
	}
	d.FinalIntent = d.Primary
	return d
}

func fallback(d Decision, confidence float64, rationale string) Decision {
	d.Primary = IntentLog
	d.FinalIntent = IntentLog
	d.Confidence = confidence
	d.Rationale = rationale
	d.Fallback = true
	return d
}

// parseIntent maps a model label onto an Intent. The legacy
// profile_update/profile_view and control_action labels are accepted and
// split into intent plus profile action.
func parseIntent(label string) (Intent, string) {
	switch l := strings.ToLower(strings.TrimSpace(label)); l {
	case "log", "recall", "coach", "profile", "control", "unknown":
		return Intent(l), ""
	case "profile_update", "update_profile":
		return IntentProfile, "update_profile"
	case "profile_view", "view_profile":
		return IntentProfile, "view_profile"
	case "control_action":
		return IntentControl, ""
	default:
		return IntentUnknown, ""
	}
}

// ApplyHeuristics overrides a low-confidence primary intent when the raw
// message carries recall or coach cues, checked in that order. Confidence
// is left untouched.
func ApplyHeuristics(d Decision, message string) Decision {
	d.FinalIntent = d.Primary
	if d.Confidence >= HeuristicThreshold {
		return d
	}

	m := strings.ToLower(message)
	if cue, ok := firstCue(m, recallCues); ok {
		return override(d, IntentRecall, cue)
	}
	if cue, ok := firstCue(m, coachCues); ok {
		return override(d, IntentCoach, cue)
	}
	return d
}

func override(d Decision, to Intent, cue string) Decision {
	if d.Primary == to {
		return d
	}
	d.FinalIntent = to
	d.Overridden = true
	d.OverrideReason = fmt.Sprintf("low confidence %.2f and message contains %q", d.Confidence, cue)
	if d.Secondary == to {
		d.Secondary = ""
	}
	return d
}

func firstCue(message string, cues []string) (string, bool) {
	for _, c := range cues {
		if strings.Contains(message, c) {
			return c, true
		}
	}
	return "", false
}

// recordDecision adds a decision to the audit log.
func (r *Router) recordDecision(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Trim if over capacity
	if len(r.auditLog) >= r.config.MaxAuditLog {
		r.auditLog = r.auditLog[1:]
	}
	r.auditLog = append(r.auditLog, d)

	r.stats.TotalRequests++
	r.stats.IntentCounts[string(d.FinalIntent)]++
	if d.Overridden {
		r.stats.Overrides++
	}
	if d.Fallback {
		r.stats.Fallbacks++
	}
	r.stats.AvgLatencyMs += (d.LatencyMs - r.stats.AvgLatencyMs) / r.stats.TotalRequests
}

// GetAuditLog returns up to limit of the most recent decisions, oldest
// first. limit <= 0 returns everything kept.
func (r *Router) GetAuditLog(limit int) []Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.auditLog) {
		limit = len(r.auditLog)
	}

	start := len(r.auditLog) - limit
	result := make([]Decision, limit)
	copy(result, r.auditLog[start:])
	return result
}

// GetStats returns a snapshot of routing statistics.
func (r *Router) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.stats
	s.IntentCounts = maps.Clone(r.stats.IntentCounts)
	return s
}

// Explain returns the recorded decision for requestID, or nil.
func (r *Router) Explain(requestID string) *Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].RequestID == requestID {
			d := r.auditLog[i]
			return &d
		}
	}
	return nil
}
