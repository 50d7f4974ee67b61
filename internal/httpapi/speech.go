package httpapi

import (
	"errors"
	"net/http"

	"github.com/speechdesk/speechdesk/internal/pipeline"
)

type generateRequest struct {
	Text string `json:"text"`
}

type generateResponse struct {
	MessageIDs []string `json:"message_ids"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ids, err := s.pipeline.Generate(req.Text)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNoCredential):
			respondError(w, http.StatusBadRequest, "missing_credential", err.Error())
		case errors.Is(err, pipeline.ErrEmptyText):
			respondError(w, http.StatusBadRequest, "empty_text", err.Error())
		case errors.Is(err, pipeline.ErrBusy):
			respondError(w, http.StatusConflict, "generation_in_progress", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, generateResponse{MessageIDs: ids})
}

func (s *Server) handleStopGeneration(w http.ResponseWriter, _ *http.Request) {
	s.pipeline.Stop()
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}
