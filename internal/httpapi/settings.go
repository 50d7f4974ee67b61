package httpapi

import (
	"net/http"
	"strings"

	"github.com/speechdesk/speechdesk/internal/session"
	"github.com/speechdesk/speechdesk/internal/store"
)

type settingsResponse struct {
	session.Settings
	CredentialSet bool `json:"credential_set"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, settingsResponse{
		Settings:      s.state.Settings(),
		CredentialSet: s.state.Credential() != "",
	})
}

// handlePutSettings replaces the synthesis preferences and writes them
// through to durable storage.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req session.Settings
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ModelID) == "" {
		req.ModelID = s.cfg.DefaultModelID
	}

	s.state.SetSettings(req)

	ctx := r.Context()
	if err := s.settings.SetModelID(ctx, req.ModelID); err != nil {
		respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
		return
	}
	if err := s.settings.SetVoice(ctx, req.Voice); err != nil {
		respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
		return
	}
	flags := map[string]bool{
		store.KeySplitEnabled:   req.SplitEnabled,
		store.KeyConcurrent:     req.ConcurrentEnabled,
		store.KeyAutoPlay:       req.AutoPlayEnabled,
		store.KeyConsoleVisible: req.ConsoleVisible,
	}
	for key, enabled := range flags {
		if err := s.settings.SetFlag(ctx, key, enabled); err != nil {
			respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
			return
		}
	}

	respondJSON(w, http.StatusOK, settingsResponse{
		Settings:      s.state.Settings(),
		CredentialSet: s.state.Credential() != "",
	})
}

type credentialRequest struct {
	Credential string `json:"credential"`
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	s.state.SetCredential(req.Credential)
	if err := s.settings.SetCredential(r.Context(), req.Credential); err != nil {
		respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"credential_set": s.state.Credential() != ""})
}
