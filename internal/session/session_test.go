package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
)

func TestManager_GetReturnsSameSession(t *testing.T) {
	m := NewManager(0, 0)
	a := m.Get("alice")
	a.SetOpenEpisode("ep_1")

	if got := m.Get("alice").OpenEpisode(); got != "ep_1" {
		t.Errorf("OpenEpisode() = %q, want ep_1", got)
	}
	if m.Get("bob").OpenEpisode() != "" {
		t.Error("new session should have no open episode")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(2, time.Hour)
	m.Get("a")
	m.Get("b")
	m.Get("a")
	m.Get("c")

	if _, ok := m.Peek("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := m.Peek("a"); !ok {
		t.Error("a was used recently and should remain")
	}
}

func TestManager_Expires(t *testing.T) {
	m := NewManager(10, 20*time.Millisecond)
	m.Get("a").SetOpenEpisode("ep_1")
	time.Sleep(60 * time.Millisecond)

	if _, ok := m.Peek("a"); ok {
		t.Fatal("session should have expired")
	}
	if m.Get("a").OpenEpisode() != "" {
		t.Error("expired session state leaked into the new one")
	}
}

func TestManager_Drop(t *testing.T) {
	m := NewManager(10, time.Hour)
	m.Get("a")
	m.Drop("a")
	if _, ok := m.Peek("a"); ok {
		t.Error("dropped session still present")
	}
}

func TestSession_HistoryCapped(t *testing.T) {
	s := &Session{ID: "x"}
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := range 15 {
		s.AddTurn("user", fmt.Sprintf("msg %d", i), now)
	}

	h := s.History()
	if len(h) != MaxHistory {
		t.Fatalf("len(History()) = %d, want %d", len(h), MaxHistory)
	}
	if h[0].Text != "msg 5" || h[9].Text != "msg 14" {
		t.Errorf("History() kept %q..%q", h[0].Text, h[9].Text)
	}
	if lines := s.HistoryLines(); lines[9] != "user: msg 14" {
		t.Errorf("HistoryLines()[9] = %q", lines[9])
	}
}

func TestSession_TakePending(t *testing.T) {
	s := &Session{}
	p := &PendingClarification{
		Message:    "headache again",
		Extraction: episode.Extraction{Intent: episode.IntentEpisodeUpdate, Condition: "migraine"},
	}
	s.SetPending(p)

	if s.Pending() != p {
		t.Fatal("Pending() did not return the stored clarification")
	}
	if got := s.TakePending(); got != p {
		t.Errorf("TakePending() = %v", got)
	}
	if s.Pending() != nil {
		t.Error("TakePending should clear the clarification")
	}
}

func TestSession_BeginTurnSerializes(t *testing.T) {
	s := &Session{}
	var (
		wg     sync.WaitGroup
		active int
		peak   int
		mu     sync.Mutex
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			end := s.BeginTurn()
			defer end()
			mu.Lock()
			active++
			peak = max(peak, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Errorf("concurrent turns = %d, want 1", peak)
	}
}
