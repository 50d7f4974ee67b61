package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/speechdesk/speechdesk/internal/config"
	"github.com/speechdesk/speechdesk/internal/gateway"
	"github.com/speechdesk/speechdesk/internal/message"
	"github.com/speechdesk/speechdesk/internal/observability"
	"github.com/speechdesk/speechdesk/internal/pipeline"
	"github.com/speechdesk/speechdesk/internal/playback"
	"github.com/speechdesk/speechdesk/internal/session"
	"github.com/speechdesk/speechdesk/internal/store"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = observability.NewMetrics("httpapitest")

type fakeGateway struct {
	voices     []message.Voice
	uploaded   *gateway.UploadVoiceRequest
	deleted    []string
	transcript string
	err        error
}

func (f *fakeGateway) ListVoices(_ context.Context, _ string) ([]message.Voice, error) {
	return f.voices, f.err
}

func (f *fakeGateway) UploadVoice(_ context.Context, req gateway.UploadVoiceRequest) (message.Voice, error) {
	if f.err != nil {
		return message.Voice{}, f.err
	}
	f.uploaded = &req
	return message.Voice{ID: "speech:custom:new", Name: req.Name, Type: message.VoiceCustom}, nil
}

func (f *fakeGateway) DeleteVoice(_ context.Context, _, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.deleted = append(f.deleted, id)
	return "ok", nil
}

func (f *fakeGateway) Transcribe(_ context.Context, _, _ string, _ []byte) (string, error) {
	return f.transcript, f.err
}

type synthFunc func(ctx context.Context, req gateway.SynthesizeRequest) ([]byte, error)

func (f synthFunc) Synthesize(ctx context.Context, req gateway.SynthesizeRequest) ([]byte, error) {
	return f(ctx, req)
}

type testEnv struct {
	server *Server
	state  *session.State
	gw     *fakeGateway
	kv     *store.MemoryKV
	pl     *pipeline.Pipeline
}

func newTestEnv(credential string) *testEnv {
	cfg := config.Config{DefaultModelID: "speech-1"}
	state := session.NewState(credential)
	state.SetSettings(session.Settings{ModelID: "speech-1", SplitEnabled: true})

	kv := store.NewMemoryKV()
	settings := store.NewSettings(kv)
	history := store.NewHistory(kv, 0)

	synth := synthFunc(func(_ context.Context, _ gateway.SynthesizeRequest) ([]byte, error) {
		return []byte("MP3"), nil
	})
	pl := pipeline.New(state, synth, testMetrics, pipeline.Config{RetryDelay: time.Millisecond})
	pb := playback.NewController(state)
	gw := &fakeGateway{}

	return &testEnv{
		server: New(cfg, state, pl, pb, gw, settings, history, testMetrics),
		state:  state,
		gw:     gw,
		kv:     kv,
		pl:     pl,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func waitIdle(t *testing.T, pl *pipeline.Pipeline) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !pl.Busy() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("pipeline still busy")
}

func TestGenerateRequiresCredential(t *testing.T) {
	env := newTestEnv("")
	rec := env.do(t, http.MethodPost, "/v1/speech/generate", map[string]string{"text": "hello"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "missing_credential" {
		t.Fatalf("code = %q, want missing_credential", resp.Code)
	}
}

func TestGenerateRejectsBlankText(t *testing.T) {
	env := newTestEnv("key")
	rec := env.do(t, http.MethodPost, "/v1/speech/generate", map[string]string{"text": "  \n  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeBody[errorResponse](t, rec); resp.Code != "empty_text" {
		t.Fatalf("code = %q, want empty_text", resp.Code)
	}
}

func TestGenerateAcceptsBatch(t *testing.T) {
	env := newTestEnv("key")
	rec := env.do(t, http.MethodPost, "/v1/speech/generate", map[string]string{"text": "a\nb"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	resp := decodeBody[generateResponse](t, rec)
	if len(resp.MessageIDs) != 2 {
		t.Fatalf("returned %d ids, want 2", len(resp.MessageIDs))
	}
	waitIdle(t, env.pl)

	list := env.do(t, http.MethodGet, "/v1/messages", nil)
	msgs := decodeBody[listMessagesResponse](t, list)
	if len(msgs.Messages) != 2 {
		t.Fatalf("listed %d messages, want 2", len(msgs.Messages))
	}
	for _, m := range msgs.Messages {
		if m.Status != message.StatusSuccess {
			t.Fatalf("message %q status = %q, want success", m.Text, m.Status)
		}
	}
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv("key")
	env.state.ReplaceMessages([]message.Message{{ID: "m1", Status: message.StatusSuccess}})

	rec := env.do(t, http.MethodDelete, "/v1/messages/m1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/v1/messages/m1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestClearMessages(t *testing.T) {
	env := newTestEnv("key")
	env.state.ReplaceMessages([]message.Message{{ID: "m1", Status: message.StatusSuccess}})
	_ = env.kv.Set(context.Background(), store.KeyHistory, "[]")

	rec := env.do(t, http.MethodDelete, "/v1/messages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := env.state.Messages(); len(got) != 0 {
		t.Fatalf("%d messages left after clear", len(got))
	}
	if v, _ := env.kv.Get(context.Background(), store.KeyHistory); v != "" {
		t.Fatalf("history blob still present after clear: %q", v)
	}
}

func TestPlaybackEndpoints(t *testing.T) {
	env := newTestEnv("key")
	env.state.SetSettings(session.Settings{AutoPlayEnabled: true})
	env.state.ReplaceMessages([]message.Message{
		{ID: "x", Status: message.StatusSuccess},
		{ID: "y", Status: message.StatusSuccess},
	})

	rec := env.do(t, http.MethodPost, "/v1/playback/play", map[string]string{"message_id": "x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("play status = %d, want 200", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/playback/active", nil)
	if got := decodeBody[playbackResponse](t, rec); got.ActiveID != "x" {
		t.Fatalf("active = %q, want x", got.ActiveID)
	}

	rec = env.do(t, http.MethodPost, "/v1/playback/finished", map[string]string{"message_id": "x"})
	if got := decodeBody[playbackResponse](t, rec); got.ActiveID != "y" {
		t.Fatalf("auto-advance moved to %q, want y", got.ActiveID)
	}

	rec = env.do(t, http.MethodPost, "/v1/playback/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/playback/active", nil)
	if got := decodeBody[playbackResponse](t, rec); got.ActiveID != "" {
		t.Fatalf("active = %q after stop, want empty", got.ActiveID)
	}
}

func TestPlayRejectsNonSuccess(t *testing.T) {
	env := newTestEnv("key")
	env.state.ReplaceMessages([]message.Message{{ID: "p", Status: message.StatusPending}})
	rec := env.do(t, http.MethodPost, "/v1/playback/play", map[string]string{"message_id": "p"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv("key")

	put := env.do(t, http.MethodPut, "/v1/settings", session.Settings{
		ModelID:           "fishaudio/fish-speech-1.5",
		Voice:             message.Voice{ID: "alex", Name: "Alex", Type: message.VoiceSystem},
		SplitEnabled:      true,
		ConcurrentEnabled: true,
		AutoPlayEnabled:   true,
	})
	if put.Code != http.StatusOK {
		t.Fatalf("put status = %d, want 200", put.Code)
	}

	get := env.do(t, http.MethodGet, "/v1/settings", nil)
	resp := decodeBody[settingsResponse](t, get)
	if resp.ModelID != "fishaudio/fish-speech-1.5" || !resp.ConcurrentEnabled || !resp.AutoPlayEnabled {
		t.Fatalf("settings = %+v", resp)
	}
	if !resp.CredentialSet {
		t.Fatalf("credential_set = false, want true")
	}

	// Written through to the durable store.
	persisted := store.NewSettings(env.kv)
	if got := persisted.ModelID(context.Background()); got != "fishaudio/fish-speech-1.5" {
		t.Fatalf("persisted model = %q", got)
	}
	if !persisted.Flag(context.Background(), store.KeyConcurrent) {
		t.Fatalf("persisted concurrent flag = false")
	}
}

func TestPutCredential(t *testing.T) {
	env := newTestEnv("")
	rec := env.do(t, http.MethodPut, "/v1/config/credential", map[string]string{"credential": " sk-new "})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := env.state.Credential(); got != "sk-new" {
		t.Fatalf("credential = %q, want sk-new", got)
	}
	persisted := store.NewSettings(env.kv)
	if got := persisted.Credential(context.Background()); got != "sk-new" {
		t.Fatalf("persisted credential = %q", got)
	}
}

func TestListVoicesAppliesNicknames(t *testing.T) {
	env := newTestEnv("key")
	env.gw.voices = []message.Voice{
		{ID: "v1", Name: "Provider Name", Type: message.VoiceCustom},
		{ID: "v2", Name: "Other", Type: message.VoiceCustom},
	}
	env.state.SetNickname("v1", "My Narrator")

	rec := env.do(t, http.MethodGet, "/v1/voices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeBody[listVoicesResponse](t, rec)
	if resp.DefaultVoiceID != gateway.DefaultVoiceID {
		t.Fatalf("default voice = %q", resp.DefaultVoiceID)
	}
	if resp.Voices[0].Name != "My Narrator" || resp.Voices[1].Name != "Other" {
		t.Fatalf("voices = %+v, want nickname overlay on v1 only", resp.Voices)
	}
}

func TestListVoicesGatewayError(t *testing.T) {
	env := newTestEnv("key")
	env.gw.err = &gateway.Error{Op: "list voices", Status: 401, Message: "invalid api key"}
	rec := env.do(t, http.MethodGet, "/v1/voices", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if resp := decodeBody[errorResponse](t, rec); resp.Error != "invalid api key" {
		t.Fatalf("error = %q, want provider message", resp.Error)
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		part, err := form.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, form.FormDataContentType()
}

func TestUploadVoice(t *testing.T) {
	env := newTestEnv("key")
	body, contentType := multipartBody(t, map[string]string{
		"name": "Narrator",
		"text": "reference line",
	}, "file", "ref.wav", []byte("wavdata"))

	req := httptest.NewRequest(http.MethodPost, "/v1/voices/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if env.gw.uploaded == nil {
		t.Fatalf("gateway never received the upload")
	}
	if env.gw.uploaded.Model != "speech-1" {
		t.Fatalf("upload model = %q, want config default", env.gw.uploaded.Model)
	}
	if env.gw.uploaded.Filename != "ref.wav" || string(env.gw.uploaded.Audio) != "wavdata" {
		t.Fatalf("upload payload = %+v", env.gw.uploaded)
	}
}

func TestUploadVoiceValidation(t *testing.T) {
	env := newTestEnv("key")
	body, contentType := multipartBody(t, map[string]string{"text": "ref"}, "file", "ref.wav", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/voices/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeBody[errorResponse](t, rec); resp.Code != "missing_name" {
		t.Fatalf("code = %q, want missing_name", resp.Code)
	}
}

func TestUploadVoiceRejectsMalformedName(t *testing.T) {
	cases := []struct {
		name      string
		voiceName string
	}{
		{name: "spaces", voiceName: "my voice"},
		{name: "punctuation", voiceName: "voice!"},
		{name: "unicode", voiceName: "声音"},
		{name: "too long", voiceName: strings.Repeat("a", 65)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv("key")
			body, contentType := multipartBody(t, map[string]string{
				"name": tc.voiceName,
				"text": "ref",
			}, "file", "ref.wav", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/v1/voices/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			env.server.Router().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if resp := decodeBody[errorResponse](t, rec); resp.Code != "invalid_name" {
				t.Fatalf("code = %q, want invalid_name", resp.Code)
			}
			if env.gw.uploaded != nil {
				t.Fatalf("malformed name %q reached the provider", tc.voiceName)
			}
		})
	}

	// The boundary case passes.
	env := newTestEnv("key")
	body, contentType := multipartBody(t, map[string]string{
		"name": strings.Repeat("a", 64),
		"text": "ref",
	}, "file", "ref.wav", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/voices/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status for 64-char name = %d, want 201", rec.Code)
	}
}

func TestDeleteVoiceResetsSelection(t *testing.T) {
	env := newTestEnv("key")
	env.state.SetSettings(session.Settings{
		ModelID: "speech-1",
		Voice:   message.Voice{ID: "speech:custom:old", Name: "Old", Type: message.VoiceCustom},
	})
	env.state.SetNickname("speech:custom:old", "Old Nick")

	rec := env.do(t, http.MethodPost, "/v1/voices/delete", map[string]string{"id": "speech:custom:old"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(env.gw.deleted) != 1 || env.gw.deleted[0] != "speech:custom:old" {
		t.Fatalf("gateway deletions = %v", env.gw.deleted)
	}
	if got := env.state.Settings().Voice.ID; got != gateway.DefaultVoiceID {
		t.Fatalf("selected voice = %q after delete, want default", got)
	}
	if _, ok := env.state.Nicknames()["speech:custom:old"]; ok {
		t.Fatalf("nickname survived voice deletion")
	}
}

func TestTranscribe(t *testing.T) {
	env := newTestEnv("key")
	env.gw.transcript = "hello there"

	body, contentType := multipartBody(t, nil, "file", "clip.webm", []byte("audio"))
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[transcribeResponse](t, rec); resp.Text != "hello there" {
		t.Fatalf("text = %q, want transcript", resp.Text)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv("")
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
			t.Fatalf("GET %s content type = %q", path, rec.Header().Get("Content-Type"))
		}
	}
}
