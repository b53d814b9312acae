package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nanaoosaki/health-companion/internal/session"
)

// SessionView is the inspectable state of one conversation.
type SessionView struct {
	SessionID     string                        `json:"session_id"`
	OpenEpisodeID string                        `json:"open_episode_id,omitempty"`
	Pending       *session.PendingClarification `json:"pending,omitempty"`
	History       []session.Turn                `json:"history"`
}

// handleSessionGet shows a live session without refreshing its expiry.
// GET /v1/sessions/{id}
func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "sessions not configured")
		return
	}

	sess, ok := s.sessions.Peek(chi.URLParam(r, "id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, SessionView{
		SessionID:     sess.ID,
		OpenEpisodeID: sess.OpenEpisode(),
		Pending:       sess.Pending(),
		History:       sess.History(),
	}, s.logger)
}

// handleSessionDelete forgets a session, discarding its pending question
// and history. Stored episodes are untouched.
// DELETE /v1/sessions/{id}
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "sessions not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := s.sessions.Peek(id); !ok {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	s.sessions.Drop(id)
	w.WriteHeader(http.StatusNoContent)
}
