package httpapi

import (
	"net/http"

	"github.com/speechdesk/speechdesk/internal/message"
)

type listMessagesResponse struct {
	Messages []message.Message `json:"messages"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, _ *http.Request) {
	messages := s.state.Messages()
	if messages == nil {
		messages = []message.Message{}
	}
	respondJSON(w, http.StatusOK, listMessagesResponse{Messages: messages})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_message_id", "missing message id")
		return
	}
	if !s.state.Remove(id) {
		respondError(w, http.StatusNotFound, "message_not_found", "no message with id "+id)
		return
	}
	s.playback.HandleRemoved(id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	s.playback.Stop()
	s.state.Clear()
	if err := s.history.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "history_clear_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
