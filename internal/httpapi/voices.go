package httpapi

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/speechdesk/speechdesk/internal/gateway"
	"github.com/speechdesk/speechdesk/internal/message"
)

const (
	maxUploadBytes  = 32 << 20
	maxVoiceNameLen = 64
)

var voiceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validVoiceName enforces the provider's customName constraints before any
// remote call: bounded length, letters, digits, underscores and hyphens only.
func validVoiceName(name string) bool {
	return len(name) <= maxVoiceNameLen && voiceNamePattern.MatchString(name)
}

type listVoicesResponse struct {
	DefaultVoiceID string          `json:"default_voice_id"`
	Voices         []message.Voice `json:"voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	credential := s.state.Credential()
	if credential == "" {
		respondError(w, http.StatusBadRequest, "missing_credential", "no API credential configured")
		return
	}

	voices, err := s.gw.ListVoices(r.Context(), credential)
	if err != nil {
		respondGatewayError(w, err)
		return
	}

	// Local nicknames override the provider's display names.
	nicknames := s.state.Nicknames()
	for i := range voices {
		if nick, ok := nicknames[voices[i].ID]; ok {
			voices[i].Name = nick
		}
	}
	if voices == nil {
		voices = []message.Voice{}
	}

	respondJSON(w, http.StatusOK, listVoicesResponse{
		DefaultVoiceID: gateway.DefaultVoiceID,
		Voices:         voices,
	})
}

func (s *Server) handleUploadVoice(w http.ResponseWriter, r *http.Request) {
	credential := s.state.Credential()
	if credential == "" {
		respondError(w, http.StatusBadRequest, "missing_credential", "no API credential configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	refText := strings.TrimSpace(r.FormValue("text"))
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		model = s.cfg.DefaultModelID
	}
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "voice name is required")
		return
	}
	if !validVoiceName(name) {
		respondError(w, http.StatusBadRequest, "invalid_name", "voice name must be at most 64 letters, digits, underscores or hyphens")
		return
	}
	if refText == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "reference text is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_file", "reference audio file is required")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_file", err.Error())
		return
	}
	if len(audio) == 0 {
		respondError(w, http.StatusBadRequest, "empty_file", "reference audio file is empty")
		return
	}

	voice, err := s.gw.UploadVoice(r.Context(), gateway.UploadVoiceRequest{
		Name:          name,
		ReferenceText: refText,
		Model:         model,
		Audio:         audio,
		Filename:      header.Filename,
		Credential:    credential,
	})
	if err != nil {
		respondGatewayError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, voice)
}

type deleteVoiceRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	credential := s.state.Credential()
	if credential == "" {
		respondError(w, http.StatusBadRequest, "missing_credential", "no API credential configured")
		return
	}

	var req deleteVoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_voice_id", "missing voice id")
		return
	}

	detail, err := s.gw.DeleteVoice(r.Context(), credential, id)
	if err != nil {
		respondGatewayError(w, err)
		return
	}

	s.state.SetNickname(id, "")
	if err := s.settings.SetNicknames(r.Context(), s.state.Nicknames()); err != nil {
		respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
		return
	}

	// Deleting the selected voice falls back to the provider default.
	current := s.state.Settings()
	if current.Voice.ID == id {
		current.Voice = message.Voice{ID: gateway.DefaultVoiceID, Name: "Default", Type: message.VoiceSystem}
		s.state.SetSettings(current)
		if err := s.settings.SetVoice(r.Context(), current.Voice); err != nil {
			respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "detail": detail})
}

type nicknameRequest struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

// handleSetNickname records a local display-name override for a voice. An
// empty name removes the override.
func (s *Server) handleSetNickname(w http.ResponseWriter, r *http.Request) {
	var req nicknameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_voice_id", "missing voice id")
		return
	}

	s.state.SetNickname(strings.TrimSpace(req.VoiceID), req.Name)
	if err := s.settings.SetNicknames(r.Context(), s.state.Nicknames()); err != nil {
		respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"nicknames": s.state.Nicknames()})
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	credential := s.state.Credential()
	if credential == "" {
		respondError(w, http.StatusBadRequest, "missing_credential", "no API credential configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_file", "audio file is required")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_file", err.Error())
		return
	}
	if len(audio) == 0 {
		respondError(w, http.StatusBadRequest, "empty_file", "audio file is empty")
		return
	}

	text, err := s.gw.Transcribe(r.Context(), credential, header.Filename, audio)
	if err != nil {
		respondGatewayError(w, err)
		return
	}
	// An empty transcript is a valid "no speech recognized" result.
	respondJSON(w, http.StatusOK, transcribeResponse{Text: text})
}

func respondGatewayError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		respondError(w, http.StatusBadGateway, "provider_error", gwErr.Message)
		return
	}
	respondError(w, http.StatusBadGateway, "provider_unreachable", err.Error())
}
