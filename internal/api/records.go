package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
)

// handleEpisodeList lists episodes, newest first.
// GET /v1/episodes?status=open&condition=migraine&limit=20
func (s *Server) handleEpisodeList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	f := healthstore.EpisodeFilter{Limit: queryInt(r, "limit", 50)}
	switch status := episode.Status(r.URL.Query().Get("status")); status {
	case "":
	case episode.StatusOpen, episode.StatusClosed:
		f.Status = status
	default:
		s.errorResponse(w, http.StatusBadRequest, "status must be open or closed")
		return
	}
	if c := r.URL.Query().Get("condition"); c != "" {
		f.Conditions = []string{episode.NormalizeCondition(c)}
	}

	episodes := s.store.ListEpisodes(r.Context(), f)
	if episodes == nil {
		episodes = []episode.Episode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(episodes),
		"episodes": episodes,
	}, s.logger)
}

func (s *Server) handleEpisodeGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	ep, err := s.store.GetEpisode(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, healthstore.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "episode not found")
		return
	case err != nil:
		s.errorResponse(w, http.StatusInternalServerError, "episode read failed")
		return
	}
	writeJSON(w, http.StatusOK, ep, s.logger)
}

func (s *Server) handleEpisodeClose(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if !s.store.CloseEpisode(r.Context(), id, s.now()) {
		s.errorResponse(w, http.StatusNotFound, "no open episode with that id")
		return
	}
	s.logger.Info("episode closed via API", "episode_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"episode_id": id, "status": string(episode.StatusClosed)}, s.logger)
}

// handleCandidates shows what the resolver would consider right now.
// GET /v1/candidates?window_hours=24
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	window := s.config.CandidateWindow
	if h := queryInt(r, "window_hours", 0); h > 0 {
		window = time.Duration(h) * time.Hour
	}
	candidates := s.store.FetchCandidates(r.Context(), window, s.now())
	if candidates == nil {
		candidates = []episode.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window_hours": window.Hours(),
		"candidates":   candidates,
	}, s.logger)
}

// handleHistory recompiles and returns the summary for one day.
// GET /v1/history/2025-01-31
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	day, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	h, err := s.store.DailyRollup(r.Context(), day)
	if err != nil {
		s.logger.Error("daily rollup failed", "date", day.Format(time.DateOnly), "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "rollup failed")
		return
	}
	writeJSON(w, http.StatusOK, h, s.logger)
}
