package httpapi

import "net/http"

type playbackRequest struct {
	MessageID string `json:"message_id"`
}

type playbackResponse struct {
	ActiveID string `json:"active_id"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.MessageID == "" {
		respondError(w, http.StatusBadRequest, "invalid_message_id", "missing message id")
		return
	}
	if !s.playback.Play(req.MessageID) {
		respondError(w, http.StatusConflict, "not_playable", "message is not a playable success record")
		return
	}
	respondJSON(w, http.StatusOK, playbackResponse{ActiveID: req.MessageID})
}

// handlePlaybackFinished is the browser's report that the active clip ran to
// completion; the response carries the clip the auto-advance chain moved to,
// if any.
func (s *Server) handlePlaybackFinished(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	next := s.playback.Finished(req.MessageID)
	respondJSON(w, http.StatusOK, playbackResponse{ActiveID: next})
}

func (s *Server) handlePlaybackStop(w http.ResponseWriter, _ *http.Request) {
	s.playback.Stop()
	respondJSON(w, http.StatusOK, playbackResponse{})
}

func (s *Server) handlePlaybackActive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, playbackResponse{ActiveID: s.playback.Active()})
}
