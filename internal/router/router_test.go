package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nanaoosaki/health-companion/internal/llm"
)

// fakeClient replies with a fixed string or error.
type fakeClient struct {
	reply    string
	err      error
	model    string
	messages []llm.Message
}

func (f *fakeClient) Chat(_ context.Context, model string, messages []llm.Message, _ llm.CallOptions) (*llm.ChatResponse, error) {
	f.model = model
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Model: model, Message: llm.Assistant(f.reply)}, nil
}

func (f *fakeClient) Ping(context.Context) error { return f.err }

func newTestRouter(client llm.Client) *Router {
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), client, Config{
		Model:       "router-model",
		MaxAuditLog: 3,
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  Decision
	}{
		{
			name:  "log plus coach",
			reply: `{"primary":"log","secondary":"coach","confidence":0.92,"rationale":"symptom and question","profile_action":null}`,
			want:  Decision{Primary: IntentLog, Secondary: IntentCoach, Confidence: 0.92, Rationale: "symptom and question", FinalIntent: IntentLog},
		},
		{
			name:  "fenced reply",
			reply: "```json\n{\"primary\":\"recall\",\"confidence\":0.8,\"rationale\":\"asks about past\"}\n```",
			want:  Decision{Primary: IntentRecall, Confidence: 0.8, Rationale: "asks about past", FinalIntent: IntentRecall},
		},
		{
			name:  "legacy profile label",
			reply: `{"primary":"profile_update","confidence":0.9,"rationale":"edit"}`,
			want:  Decision{Primary: IntentProfile, ProfileAction: "update_profile", Confidence: 0.9, Rationale: "edit", FinalIntent: IntentProfile},
		},
		{
			name:  "unknown label",
			reply: `{"primary":"banter","confidence":1.7}`,
			want:  Decision{Primary: IntentUnknown, Confidence: 1, FinalIntent: IntentUnknown},
		},
		{
			name:  "secondary equal to primary dropped",
			reply: `{"primary":"coach","secondary":"coach","confidence":0.9}`,
			want:  Decision{Primary: IntentCoach, Confidence: 0.9, FinalIntent: IntentCoach},
		},
		{
			name:  "unstructured",
			reply: "I think they want to log something.",
			want: Decision{Primary: IntentLog, Confidence: 0.5, FinalIntent: IntentLog, Fallback: true,
				Rationale: "Router returned unstructured output, defaulting to log"},
		},
		{
			name: "error",
			err:  errors.New("connection refused"),
			want: Decision{Primary: IntentLog, Confidence: 0.3, FinalIntent: IntentLog, Fallback: true,
				Rationale: "Router error, defaulting to log: connection refused"},
		},
	}

	ignore := cmpopts.IgnoreFields(Decision{}, "RequestID", "Timestamp", "MessageLength", "HistoryTurns", "Model")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeClient{reply: tt.reply, err: tt.err})
			got := r.Classify(context.Background(), "I have a migraine, what should I do?", nil)
			if diff := cmp.Diff(tt.want, got, ignore); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
			if got.RequestID == "" {
				t.Error("RequestID is empty")
			}
		})
	}
}

func TestClassify_SendsPrompt(t *testing.T) {
	fc := &fakeClient{reply: `{"primary":"log","confidence":0.9}`}
	r := newTestRouter(fc)
	r.Classify(context.Background(), "slept badly", []string{"user: hi"})

	if fc.model != "router-model" {
		t.Errorf("model = %q, want router-model", fc.model)
	}
	if len(fc.messages) != 2 || fc.messages[0].Role != llm.RoleSystem {
		t.Fatalf("messages = %+v", fc.messages)
	}
	if !strings.Contains(fc.messages[1].Content, "Latest message: slept badly") {
		t.Errorf("user turn = %q", fc.messages[1].Content)
	}
}

func TestApplyHeuristics(t *testing.T) {
	tests := []struct {
		name       string
		primary    Intent
		confidence float64
		message    string
		want       Intent
		overridden bool
	}{
		{name: "confident untouched", primary: IntentLog, confidence: 0.7, message: "when did it start", want: IntentLog},
		{name: "recall cue", primary: IntentLog, confidence: 0.5, message: "When did my last migraine start?", want: IntentRecall, overridden: true},
		{name: "coach cue", primary: IntentLog, confidence: 0.5, message: "Any advice for sleep?", want: IntentCoach, overridden: true},
		{name: "recall beats coach", primary: IntentLog, confidence: 0.4, message: "show me my history and recommend something", want: IntentRecall, overridden: true},
		{name: "no cue", primary: IntentUnknown, confidence: 0.3, message: "hmm", want: IntentUnknown},
		{name: "already recall", primary: IntentRecall, confidence: 0.5, message: "last time?", want: IntentRecall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Decision{Primary: tt.primary, Confidence: tt.confidence}
			got := ApplyHeuristics(in, tt.message)
			if got.FinalIntent != tt.want || got.Overridden != tt.overridden {
				t.Errorf("ApplyHeuristics() = (%s, overridden=%v), want (%s, %v)", got.FinalIntent, got.Overridden, tt.want, tt.overridden)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence changed to %v", got.Confidence)
			}
			if got.Primary != tt.primary {
				t.Errorf("primary changed to %s", got.Primary)
			}
		})
	}
}

func TestRoute_AuditAndStats(t *testing.T) {
	fc := &fakeClient{reply: `{"primary":"log","confidence":0.5}`}
	r := newTestRouter(fc)
	ctx := context.Background()

	first := r.Route(ctx, "show me last week", nil)
	if first.FinalIntent != IntentRecall || !first.Overridden {
		t.Fatalf("Route() = %+v, want recall override", first)
	}
	for range 3 {
		r.Route(ctx, "headache 6/10", nil)
	}

	log := r.GetAuditLog(0)
	if len(log) != 3 {
		t.Fatalf("audit log length = %d, want 3 (capped)", len(log))
	}
	if r.Explain(first.RequestID) != nil {
		t.Error("evicted decision still explainable")
	}
	last := log[len(log)-1]
	if got := r.Explain(last.RequestID); got == nil || got.RequestID != last.RequestID {
		t.Errorf("Explain(%q) = %v", last.RequestID, got)
	}
	if got := r.GetAuditLog(1); len(got) != 1 || got[0].RequestID != last.RequestID {
		t.Errorf("GetAuditLog(1) = %+v", got)
	}

	stats := r.GetStats()
	want := Stats{TotalRequests: 4, IntentCounts: map[string]int64{"recall": 1, "log": 3}, Overrides: 1}
	if diff := cmp.Diff(want, stats, cmpopts.IgnoreFields(Stats{}, "AvgLatencyMs")); diff != "" {
		t.Errorf("GetStats() mismatch (-want +got):\n%s", diff)
	}

	stats.IntentCounts["log"] = 99
	if r.GetStats().IntentCounts["log"] != 3 {
		t.Error("GetStats shares its map with the router")
	}
}

func TestRoute_FallbackCounted(t *testing.T) {
	r := newTestRouter(&fakeClient{err: errors.New("timeout")})
	d := r.Route(context.Background(), "what should I do about this headache", nil)
	if d.Primary != IntentLog || d.FinalIntent != IntentCoach || d.Confidence != 0.3 {
		t.Errorf("Route() = %+v", d)
	}
	if r.GetStats().Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", r.GetStats().Fallbacks)
	}
}
