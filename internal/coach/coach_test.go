package coach

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
	"github.com/nanaoosaki/health-companion/internal/llm"
)

func TestApplyGuardrails(t *testing.T) {
	tests := []struct {
		name   string
		advice string
		want   string
	}{
		{
			name:   "prescriptive replaced",
			advice: "Take 400mg of ibuprofen every four hours.",
			want:   SafeAlternative,
		},
		{
			name:   "dosage replaced",
			advice: "Ask about adjusting the Dosage.",
			want:   SafeAlternative,
		},
		{
			name:   "punctuation and disclaimer",
			advice: "Rest in a dark room  ",
			want:   "Rest in a dark room.\n\n" + Disclaimer,
		},
		{
			name:   "already refers to professional",
			advice: "Rest, and see a healthcare professional if it persists!",
			want:   "Rest, and see a healthcare professional if it persists!",
		},
		{
			name:   "overuse note",
			advice: "If you are taking pills daily, keep a log",
			want:   "If you are taking pills daily, keep a log\n\n" + OveruseNote + "\n\n" + Disclaimer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyGuardrails(tt.advice); got != tt.want {
				t.Errorf("ApplyGuardrails(%q) =\n%q\nwant\n%q", tt.advice, got, tt.want)
			}
		})
	}
}

func TestTopicAndTips(t *testing.T) {
	tests := []struct {
		message string
		topic   string
		first   string
	}{
		{"I'm so stressed out", "stress", "Practice deep breathing exercises for 5-10 minutes."},
		{"can't sleep again", "sleep", "Maintain consistent sleep and wake times."},
		{"should I drink more water?", "hydration", "Sip water slowly and regularly."},
		{"bright screen triggers it", "triggers", "Keep a quiet, dark environment."},
		{"any routine changes?", "lifestyle", "Maintain regular sleep schedule and meals."},
		{"what now", "", DefaultTip},
	}
	for _, tt := range tests {
		topic := Topic(tt.message)
		if topic != tt.topic {
			t.Errorf("Topic(%q) = %q, want %q", tt.message, topic, tt.topic)
		}
		if tips := Tips(topic, 2); tips[0] != tt.first {
			t.Errorf("Tips(%q)[0] = %q, want %q", topic, tips[0], tt.first)
		}
	}
	if n := len(Tips("sleep", 1)); n != 1 {
		t.Errorf("Tips(sleep, 1) returned %d tips", n)
	}
}

type fakeReader struct {
	cands    []episode.Candidate
	episodes map[string]*episode.Episode
	window   time.Duration
}

func (f *fakeReader) FetchCandidates(_ context.Context, window time.Duration, _ time.Time) []episode.Candidate {
	f.window = window
	return f.cands
}

func (f *fakeReader) GetEpisode(_ context.Context, id string) (*episode.Episode, error) {
	if ep, ok := f.episodes[id]; ok {
		return ep, nil
	}
	return nil, healthstore.ErrNotFound
}

type fakeClient struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (f *fakeClient) Chat(_ context.Context, _ string, messages []llm.Message, _ llm.CallOptions) (*llm.ChatResponse, error) {
	f.calls++
	f.prompt = messages[len(messages)-1].Content
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Message: llm.Assistant(f.reply)}, nil
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func newHandler(client llm.Client, reader Reader) *Handler {
	return NewHandler(client, "coach-model", reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testReader() *fakeReader {
	return &fakeReader{
		cands: []episode.Candidate{
			{EpisodeID: "ep_sleep", Condition: "sleep", StartedAt: "2025-03-14T01:00:00Z", Salient: "woke at 4"},
			{EpisodeID: "ep_mig", Condition: "migraine", StartedAt: "2025-03-14T08:00:00Z", CurrentSeverity: episode.Intptr(6), Salient: "severity 6"},
		},
		episodes: map[string]*episode.Episode{
			"ep_mig": {ID: "ep_mig", Interventions: []episode.Intervention{{Type: "ibuprofen"}, {Type: "cold pack"}}},
		},
	}
}

func TestHandle_UsesSnapshot(t *testing.T) {
	reader := testReader()
	fc := &fakeClient{reply: "That sounds rough. Try resting somewhere dark and quiet"}
	h := newHandler(fc, reader)

	got, err := h.Handle(context.Background(), nil, "my migraine is bad, what should I do?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reader.window != SnapshotWindow {
		t.Errorf("snapshot window = %v, want %v", reader.window, SnapshotWindow)
	}
	for _, want := range []string{"Current episode: migraine", "severity 6/10", "Already tried: ibuprofen, cold pack"} {
		if !strings.Contains(fc.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, fc.prompt)
		}
	}
	if want := "That sounds rough. Try resting somewhere dark and quiet.\n\n" + Disclaimer; got != want {
		t.Errorf("Handle() = %q, want %q", got, want)
	}
}

func TestHandle_FallbackOnModelError(t *testing.T) {
	h := newHandler(&fakeClient{err: errors.New("offline")}, testReader())
	got, err := h.Handle(context.Background(), nil, "I'm stressed and my neck is tense")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for _, want := range []string{"I'm sorry your sleep is giving you trouble", "- Practice deep breathing", Disclaimer} {
		if !strings.Contains(got, want) {
			t.Errorf("fallback missing %q:\n%s", want, got)
		}
	}
}

func TestHandle_Emergency(t *testing.T) {
	fc := &fakeClient{reply: "unused"}
	h := newHandler(fc, testReader())
	got, _ := h.Handle(context.Background(), nil, "I have crushing chest pain")
	if got != EmergencyReply {
		t.Errorf("Handle() = %q, want emergency reply", got)
	}
	if fc.calls != 0 {
		t.Errorf("model called %d times during an emergency", fc.calls)
	}
}

func TestHandle_CautionNote(t *testing.T) {
	h := newHandler(&fakeClient{reply: "Rest and hydrate."}, &fakeReader{})
	got, _ := h.Handle(context.Background(), nil, "severe headache, should I see a doctor?")
	if !strings.HasSuffix(got, CautionNote) {
		t.Errorf("Handle() = %q, want caution note", got)
	}
}

func TestSnapshot(t *testing.T) {
	h := newHandler(&fakeClient{}, testReader())
	ctx := context.Background()

	if s := h.Snapshot(ctx, "headache help"); s == nil || s.Condition != "migraine" || len(s.Interventions) != 2 {
		t.Errorf("Snapshot(headache) = %+v", s)
	}
	if s := h.Snapshot(ctx, "what should I do"); s == nil || s.Condition != "sleep" {
		t.Errorf("Snapshot(no condition) = %+v, want most recent", s)
	}
	if s := newHandler(&fakeClient{}, &fakeReader{}).Snapshot(ctx, "help"); s != nil {
		t.Errorf("Snapshot(empty) = %+v, want nil", s)
	}
}
