package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nanaoosaki/health-companion/internal/companion"
)

// ChatRequest is the body of POST /v1/chat and each WebSocket frame.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse carries the reply and how it was produced.
type ChatResponse struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	Meta      companion.Meta `json:"meta"`
}

// handleChat answers one message.
// POST /v1/chat {"session_id": "abc", "message": "migraine 7/10 since lunch"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	reply := s.chat.Handle(r.Context(), req.SessionID, req.Message)
	writeJSON(w, http.StatusOK, ChatResponse{SessionID: req.SessionID, Text: reply.Text, Meta: reply.Meta}, s.logger)
}

// ErrorFrame is sent back over the WebSocket for a frame that could not
// be handled. The connection stays open.
type ErrorFrame struct {
	Error string `json:"error"`
}

// handleWebSocket runs a chat over one connection. Frames without a
// session_id share a session bound to the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connSession := uuid.New().String()
	s.logger.Debug("websocket connected", "session_id", connSession, "remote", r.RemoteAddr)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debug("websocket read ended", "session_id", connSession, "error", err)
			}
			return
		}

		var req ChatRequest
		problem := ""
		if err := json.Unmarshal(data, &req); err != nil {
			problem = "invalid message frame"
		} else if strings.TrimSpace(req.Message) == "" {
			problem = "message is required"
		}
		if problem != "" {
			s.logger.Debug("websocket frame rejected", "session_id", connSession, "reason", problem)
			if err := conn.WriteJSON(ErrorFrame{Error: problem}); err != nil {
				s.logger.Debug("websocket write failed", "session_id", connSession, "error", err)
				return
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = connSession
		}

		reply := s.chat.Handle(r.Context(), req.SessionID, req.Message)
		if err := conn.WriteJSON(ChatResponse{SessionID: req.SessionID, Text: reply.Text, Meta: reply.Meta}); err != nil {
			s.logger.Debug("websocket write failed", "session_id", req.SessionID, "error", err)
			return
		}
	}
}
