package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nanaoosaki/health-companion/internal/healthstore"
)

func (s *Server) handleRouterStats(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "router not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.router.GetStats(), s.logger)
}

func (s *Server) handleRouterAudit(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "router not configured")
		return
	}

	decisions := s.router.GetAuditLog(queryInt(r, "limit", 20))
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(decisions),
		"decisions": decisions,
	}, s.logger)
}

func (s *Server) handleRouterExplain(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "router not configured")
		return
	}

	decision := s.router.Explain(chi.URLParam(r, "requestID"))
	if decision == nil {
		s.errorResponse(w, http.StatusNotFound, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, decision, s.logger)
}

// handleEvents lists the extraction audit trail, newest first.
// GET /v1/events?limit=20
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	events := s.store.RecentEvents(r.Context(), queryInt(r, "limit", 20))
	if events == nil {
		events = []healthstore.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	}, s.logger)
}

// handleUsage totals LLM calls over the last days (default 7), overall
// and per role.
// GET /v1/usage?days=7
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage tracking not configured")
		return
	}

	days := queryInt(r, "days", 7)
	end := s.now()
	start := end.AddDate(0, 0, -days)

	total, err := s.usage.Total(r.Context(), start, end)
	if err != nil {
		s.logger.Warn("usage query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "usage query failed")
		return
	}
	byRole, err := s.usage.ByRole(r.Context(), start, end)
	if err != nil {
		s.logger.Warn("usage query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "usage query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"total":   total,
		"by_role": byRole,
	}, s.logger)
}
