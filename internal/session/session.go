// Package session keeps per-conversation state in a bounded, expiring
// in-memory cache.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nanaoosaki/health-companion/internal/episode"
)

// Defaults for the session cache.
const (
	DefaultMaxSessions = 256
	DefaultTTL         = 60 * time.Minute
	MaxHistory         = 10
)

// Turn is one message in a conversation.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// PendingClarification is a question the user has not answered yet,
// together with the extraction that raised it.
type PendingClarification struct {
	Message       string                `json:"message"`
	Extraction    episode.Extraction    `json:"extraction"`
	Clarification episode.Clarification `json:"clarification"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Session is the state of one conversation.
type Session struct {
	ID string

	turn sync.Mutex

	mu            sync.Mutex
	openEpisodeID string
	pending       *PendingClarification
	history       []Turn
}

// BeginTurn serializes message handling within the session. The returned
// func ends the turn.
func (s *Session) BeginTurn() func() {
	s.turn.Lock()
	return s.turn.Unlock
}

// OpenEpisode returns the episode most recently touched in this session.
func (s *Session) OpenEpisode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openEpisodeID
}

// SetOpenEpisode records the episode the conversation is about.
func (s *Session) SetOpenEpisode(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openEpisodeID = id
}

// Pending returns the outstanding clarification, if any.
func (s *Session) Pending() *PendingClarification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetPending replaces the outstanding clarification. nil clears it.
func (s *Session) SetPending(p *PendingClarification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}

// TakePending returns and clears the outstanding clarification.
func (s *Session) TakePending() *PendingClarification {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// AddTurn appends to the history, keeping the last MaxHistory turns.
func (s *Session) AddTurn(role, text string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Text: text, At: at})
	if over := len(s.history) - MaxHistory; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns a copy of the recent turns, oldest first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLines renders the history as "role: text" lines for prompts.
func (s *Session) HistoryLines() []string {
	turns := s.History()
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("%s: %s", t.Role, t.Text)
	}
	return lines
}

// Manager hands out sessions by id. Idle sessions expire after the TTL
// and the least recently used are evicted beyond the size bound.
type Manager struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Session]
}

// NewManager creates a manager. Non-positive arguments select the
// defaults.
func NewManager(maxSessions int, ttl time.Duration) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{cache: expirable.NewLRU[string, *Session](maxSessions, nil, ttl)}
}

// Get returns the session for id, creating it when absent or expired.
// Each access refreshes its expiry.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.cache.Get(id)
	if !ok {
		s = &Session{ID: id}
	}
	m.cache.Add(id, s)
	return s
}

// Peek returns an existing session without creating or refreshing it.
func (m *Manager) Peek(id string) (*Session, bool) {
	return m.cache.Peek(id)
}

// Drop forgets a session.
func (m *Manager) Drop(id string) {
	m.cache.Remove(id)
}

// Len reports how many sessions are cached.
func (m *Manager) Len() int {
	return m.cache.Len()
}
