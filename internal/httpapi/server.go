// Package httpapi exposes the speech desk over HTTP: submission and
// cancellation, message history, playback control, voice management, and a
// websocket event stream that mirrors every state change to the browser.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/speechdesk/speechdesk/internal/config"
	"github.com/speechdesk/speechdesk/internal/gateway"
	"github.com/speechdesk/speechdesk/internal/message"
	"github.com/speechdesk/speechdesk/internal/observability"
	"github.com/speechdesk/speechdesk/internal/pipeline"
	"github.com/speechdesk/speechdesk/internal/playback"
	"github.com/speechdesk/speechdesk/internal/session"
	"github.com/speechdesk/speechdesk/internal/store"
)

// Gateway is the provider surface the API needs beyond synthesis, which is
// owned by the pipeline.
type Gateway interface {
	ListVoices(ctx context.Context, credential string) ([]message.Voice, error)
	UploadVoice(ctx context.Context, req gateway.UploadVoiceRequest) (message.Voice, error)
	DeleteVoice(ctx context.Context, credential, id string) (string, error)
	Transcribe(ctx context.Context, credential, filename string, audio []byte) (string, error)
}

type Server struct {
	cfg      config.Config
	state    *session.State
	pipeline *pipeline.Pipeline
	playback *playback.Controller
	gw       Gateway
	settings *store.Settings
	history  *store.History
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, state *session.State, pl *pipeline.Pipeline, pb *playback.Controller, gw Gateway, settings *store.Settings, history *store.History, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		state:    state,
		pipeline: pl,
		playback: pb,
		gw:       gw,
		settings: settings,
		history:  history,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections by default, so another
				// website cannot drive the desk if it is exposed beyond
				// localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/speech/generate", s.handleGenerate)
	r.Post("/v1/speech/stop", s.handleStopGeneration)

	r.Get("/v1/messages", s.handleListMessages)
	r.Delete("/v1/messages", s.handleClearMessages)
	r.Delete("/v1/messages/{id}", s.handleDeleteMessage)

	r.Post("/v1/playback/play", s.handlePlay)
	r.Post("/v1/playback/finished", s.handlePlaybackFinished)
	r.Post("/v1/playback/stop", s.handlePlaybackStop)
	r.Get("/v1/playback/active", s.handlePlaybackActive)

	r.Get("/v1/voices", s.handleListVoices)
	r.Post("/v1/voices/upload", s.handleUploadVoice)
	r.Post("/v1/voices/delete", s.handleDeleteVoice)
	r.Put("/v1/voices/nickname", s.handleSetNickname)
	r.Post("/v1/transcriptions", s.handleTranscribe)

	r.Get("/v1/settings", s.handleGetSettings)
	r.Put("/v1/settings", s.handlePutSettings)
	r.Put("/v1/config/credential", s.handlePutCredential)

	r.Get("/v1/events/ws", s.handleEventsWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"generating": s.pipeline.Busy(),
	})
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.state.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(evt); err != nil {
					stop()
					return
				}
				s.metrics.WSMessages.WithLabelValues("outbound", string(evt.Type)).Inc()
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// The stream is one-way; the read loop exists to notice disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		s.metrics.WSMessages.WithLabelValues("inbound", "ignored").Inc()
	}
	stop()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func urlParam(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}
