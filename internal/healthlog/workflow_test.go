package healthlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
	"github.com/nanaoosaki/health-companion/internal/llm"
	"github.com/nanaoosaki/health-companion/internal/session"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// scriptedClient returns its replies in order, then errors.
type scriptedClient struct {
	replies []string
	prompts []string
}

func (s *scriptedClient) Chat(_ context.Context, _ string, messages []llm.Message, _ llm.CallOptions) (*llm.ChatResponse, error) {
	s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return &llm.ChatResponse{Message: llm.Assistant(r)}, nil
}

func (s *scriptedClient) Ping(context.Context) error { return nil }

type fixture struct {
	wf     *Workflow
	store  *healthstore.Store
	client *scriptedClient
	sess   *session.Session
	clock  time.Time
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := healthstore.NewStore(filepath.Join(t.TempDir(), "companion.db"), logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:  store,
		client: &scriptedClient{replies: replies},
		sess:   &session.Session{ID: "test"},
		clock:  t0,
	}
	f.wf = NewWorkflow(logger, store, NewExtractor(f.client, "extract-model", logger), Config{Model: "extract-model"})
	f.wf.now = func() time.Time { return f.clock }
	return f
}

func TestLog_CreateThenUpdate(t *testing.T) {
	f := newFixture(t,
		`{"intent":"episode_create","condition":"headache","severity":8,"notes":"Woke up with a terrible headache","link_strategy":"new_episode","confidence":0.85}`,
		`{"intent":"episode_update","condition":"migraine","severity":4,"notes":"It's now down to a 4","link_strategy":"same_episode","confidence":0.9,
		  "interventions":[{"type":"ibuprofen","dose":"400mg"}]}`,
	)
	ctx := context.Background()

	first := f.wf.Log(ctx, f.sess, "Woke up with a terrible headache, feels like an 8/10")
	if first.Action != episode.ActionCreate || first.EpisodeID == "" {
		t.Fatalf("first Log() = %+v, want create", first)
	}
	if want := "I've started tracking your migraine (severity 8/10). Hope you feel better soon."; first.Reply != want {
		t.Errorf("Reply = %q, want %q", first.Reply, want)
	}
	if f.sess.OpenEpisode() != first.EpisodeID {
		t.Errorf("session open episode = %q, want %q", f.sess.OpenEpisode(), first.EpisodeID)
	}

	f.clock = t0.Add(2 * time.Hour)
	second := f.wf.Log(ctx, f.sess, "It's now down to a 4 after taking some ibuprofen")
	if second.Action != episode.ActionUpdate || second.EpisodeID != first.EpisodeID {
		t.Fatalf("second Log() = %+v, want update of %s", second, first.EpisodeID)
	}
	if !strings.HasPrefix(second.Reply, "Thanks for the update on your migraine") {
		t.Errorf("Reply = %q", second.Reply)
	}
	if len(second.InterventionIDs) != 1 {
		t.Errorf("InterventionIDs = %v, want one", second.InterventionIDs)
	}

	// The extractor saw the open episode.
	if !strings.Contains(f.client.prompts[1], first.EpisodeID) {
		t.Errorf("second prompt did not list the open episode:\n%s", f.client.prompts[1])
	}

	ep, err := f.store.GetEpisode(ctx, first.EpisodeID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if *ep.CurrentSeverity != 4 || *ep.PeakSeverity != 8 {
		t.Errorf("severity current/peak = %d/%d, want 4/8", *ep.CurrentSeverity, *ep.PeakSeverity)
	}
	if len(ep.Interventions) != 1 || ep.Interventions[0].Type != "ibuprofen" {
		t.Errorf("interventions = %+v", ep.Interventions)
	}

	events := f.store.RecentEvents(ctx, 10)
	if len(events) != 2 || events[0].Action != "update" || events[0].EpisodeID != first.EpisodeID {
		t.Errorf("events = %+v", events)
	}
}

func TestLog_ClarifyAndResolve(t *testing.T) {
	f := newFixture(t,
		`{"intent":"episode_update","condition":"migraine","notes":"headache again","link_strategy":"unknown","confidence":0.9}`,
	)
	ctx := context.Background()

	older, _ := f.store.CreateEpisode(ctx, "migraine", episode.Fields{Severity: episode.Intptr(5)}, t0.Add(-5*time.Hour))
	newer, _ := f.store.CreateEpisode(ctx, "migraine", episode.Fields{Severity: episode.Intptr(7)}, t0.Add(-time.Hour))

	res := f.wf.Log(ctx, f.sess, "headache again, 6")
	if res.Action != episode.ActionClarify {
		t.Fatalf("Log() action = %s, want clarify", res.Action)
	}
	for _, want := range []string{"I see you mentioned migraine. Should I:", "1. Update migraine from 2025-03-14", "3. Create new migraine", "/resolve"} {
		if !strings.Contains(res.Reply, want) {
			t.Errorf("Reply missing %q:\n%s", want, res.Reply)
		}
	}
	if f.sess.Pending() == nil {
		t.Fatal("clarification was not parked on the session")
	}
	if got := f.store.ListEpisodes(ctx, healthstore.EpisodeFilter{}); len(got) != 2 {
		t.Errorf("clarify wrote episodes: %d", len(got))
	}

	bad := f.wf.ResolvePending(ctx, f.sess, 7)
	if bad.Action != episode.ActionClarify || !strings.HasPrefix(bad.Reply, "Please pick a number between 1 and 3") {
		t.Errorf("out of range ResolvePending() = %+v", bad)
	}
	if f.sess.Pending() == nil {
		t.Fatal("out of range choice dropped the clarification")
	}

	got := f.wf.ResolvePending(ctx, f.sess, 2)
	if got.Action != episode.ActionUpdate || got.EpisodeID != older {
		t.Fatalf("ResolvePending(2) = %+v, want update of %s (newer is %s)", got, older, newer)
	}
	if f.sess.Pending() != nil {
		t.Error("resolved clarification still pending")
	}
	ep, _ := f.store.GetEpisode(ctx, older)
	if len(ep.Notes) != 1 || ep.Notes[0].Text != "headache again" {
		t.Errorf("older episode notes = %+v", ep.Notes)
	}

	if r := f.wf.ResolvePending(ctx, f.sess, 1); !strings.Contains(r.Reply, "no open question") {
		t.Errorf("ResolvePending with nothing pending = %q", r.Reply)
	}
}

func TestLog_ResolveCreateOption(t *testing.T) {
	f := newFixture(t, `{"intent":"episode_create","condition":"migraine","link_strategy":"unknown","confidence":0.4}`)
	ctx := context.Background()
	existing, _ := f.store.CreateEpisode(ctx, "migraine", episode.Fields{}, t0.Add(-time.Hour))

	if res := f.wf.Log(ctx, f.sess, "migraine"); res.Action != episode.ActionClarify {
		t.Fatalf("low confidence Log() = %s, want clarify", res.Action)
	}
	got := f.wf.ResolvePending(ctx, f.sess, 2)
	if got.Action != episode.ActionCreate || got.EpisodeID == "" || got.EpisodeID == existing {
		t.Errorf("ResolvePending(create) = %+v", got)
	}
}

func TestLog_CancelPending(t *testing.T) {
	f := newFixture(t)
	if f.wf.CancelPending(f.sess) {
		t.Error("CancelPending with nothing pending = true")
	}
	f.sess.SetPending(&session.PendingClarification{})
	if !f.wf.CancelPending(f.sess) || f.sess.Pending() != nil {
		t.Error("CancelPending did not drop the clarification")
	}
}

func TestLog_Observation(t *testing.T) {
	f := newFixture(t, `{"intent":"observation","condition":"sleep","value":"5 hours","notes":"slept 5 hours","confidence":0.9}`)
	res := f.wf.Log(context.Background(), f.sess, "slept 5 hours")

	if res.Action != episode.ActionObservation || len(res.ObservationIDs) != 1 {
		t.Fatalf("Log() = %+v", res)
	}
	if res.Reply != "I've logged that information about your sleep." {
		t.Errorf("Reply = %q", res.Reply)
	}
	obs := f.store.ListObservations(context.Background(), healthstore.ObservationFilter{})
	if len(obs) != 1 || obs[0].Category != "sleep" || obs[0].Value != "5 hours" {
		t.Errorf("observations = %+v", obs)
	}
}

func TestLog_InterventionWithoutEpisode(t *testing.T) {
	f := newFixture(t, `{"intent":"intervention","notes":"took a walk","confidence":0.8,"intervention_types":["walk"],"intervention_timings":["after lunch"]}`)
	res := f.wf.Log(context.Background(), f.sess, "took a walk after lunch")

	if res.Action != episode.ActionObservation {
		t.Fatalf("Action = %s, want observation", res.Action)
	}
	if res.Reply != "Got it - I've recorded the walk. Hope it helps!" {
		t.Errorf("Reply = %q", res.Reply)
	}
	obs := f.store.ListObservations(context.Background(), healthstore.ObservationFilter{Category: "intervention"})
	if len(obs) != 1 || obs[0].Value != "walk" || obs[0].Notes != "after lunch" {
		t.Errorf("intervention observations = %+v", obs)
	}
}

func TestLog_QueryWritesNothing(t *testing.T) {
	f := newFixture(t, `{"intent":"query","condition":"migraine","confidence":0.9}`)
	res := f.wf.Log(context.Background(), f.sess, "how many migraines this week?")
	if res.Action != episode.ActionQuery {
		t.Errorf("Action = %s, want query", res.Action)
	}
	if n := len(f.store.ListEpisodes(context.Background(), healthstore.EpisodeFilter{})); n != 0 {
		t.Errorf("episodes = %d, want 0", n)
	}
}

func TestLog_ExtractionFailureSavesNote(t *testing.T) {
	f := newFixture(t, "I am not sure what you mean.")
	res := f.wf.Log(context.Background(), f.sess, "blah feeling odd")

	if res.Failed || res.Action != episode.ActionObservation {
		t.Fatalf("Log() = %+v", res)
	}
	obs := f.store.ListObservations(context.Background(), healthstore.ObservationFilter{})
	if len(obs) != 1 || obs[0].Notes != "blah feeling odd" {
		t.Errorf("observations = %+v", obs)
	}
}

func TestLog_DuplicateMessage(t *testing.T) {
	reply := `{"intent":"episode_create","condition":"migraine","severity":6,"link_strategy":"new_episode","confidence":0.9}`
	f := newFixture(t, reply, reply)
	ctx := context.Background()

	f.wf.Log(ctx, f.sess, "migraine 6/10")
	f.clock = t0.Add(30 * time.Second)
	dup := f.wf.Log(ctx, f.sess, "migraine 6/10")

	if !dup.Duplicate {
		t.Errorf("second Log() = %+v, want duplicate", dup)
	}
	if n := len(f.store.ListEpisodes(ctx, healthstore.EpisodeFilter{})); n != 1 {
		t.Errorf("episodes = %d, want 1", n)
	}
	if len(f.client.prompts) != 1 {
		t.Errorf("extractor called %d times, want 1", len(f.client.prompts))
	}
}

func TestFormatClarification(t *testing.T) {
	got := FormatClarification(episode.Clarification{
		Message: "I see you mentioned sleep. Should I:",
		Options: []episode.Option{
			{Label: "Update sleep from 2025-03-13", Description: "severity 3"},
			{Label: "Create new sleep", Description: "Start tracking a new episode"},
		},
	})
	want := "I see you mentioned sleep. Should I:\n" +
		"1. Update sleep from 2025-03-13 (severity 3)\n" +
		"2. Create new sleep (Start tracking a new episode)\n\n" +
		"Reply with /resolve <number>, or /cancel to skip."
	if got != want {
		t.Errorf("FormatClarification() =\n%s\nwant\n%s", got, want)
	}
}
