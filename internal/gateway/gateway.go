// Package gateway wraps the remote speech provider's HTTP API. Every
// operation authenticates with a bearer credential and reports failures as a
// single normalized *Error so callers never see raw provider payloads.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/speechdesk/speechdesk/internal/message"
)

const (
	defaultBaseURL    = "https://api.siliconflow.cn/v1"
	maxErrorBodyBytes = 2 << 20

	// Bodies short enough to show a user verbatim when the provider sends
	// an unstructured error.
	shortErrorBody = 200
)

type Config struct {
	BaseURL            string
	RequestTimeout     time.Duration
	TranscriptionModel string
}

type Client struct {
	baseURL            string
	transcriptionModel string
	http               *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	model := strings.TrimSpace(cfg.TranscriptionModel)
	if model == "" {
		model = "FunAudioLLM/SenseVoiceSmall"
	}
	return &Client{
		baseURL:            base,
		transcriptionModel: model,
		http:               &http.Client{Timeout: timeout},
	}
}

// Error is the single failure type surfaced by every gateway operation.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// normalizeError turns an arbitrary provider response into a human-readable
// message: a structured `message` field (with optional code) wins, a short raw
// body is used verbatim, anything else degrades to "<op> failed (<status>)".
func normalizeError(op string, status int, body []byte) *Error {
	trimmed := strings.TrimSpace(string(body))

	var payload struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		msg := strings.TrimSpace(payload.Message)
		if msg != "" {
			if code := strings.Trim(string(payload.Code), `"`); code != "" && code != "null" {
				msg = fmt.Sprintf("%s (code %s)", msg, code)
			}
			return &Error{Op: op, Status: status, Message: msg}
		}
	}

	if trimmed != "" && len(trimmed) <= shortErrorBody {
		return &Error{Op: op, Status: status, Message: trimmed}
	}
	return &Error{Op: op, Status: status, Message: fmt.Sprintf("%s failed (%d)", op, status)}
}

type SynthesizeRequest struct {
	Text       string
	Model      string
	Voice      message.Voice
	Credential string
}

type synthesizePayload struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice,omitempty"`
	ResponseFormat string `json:"response_format"`
	Stream         bool   `json:"stream"`
}

// Synthesize converts text to speech and returns the raw mp3 bytes. The
// caller is responsible for materializing them into a persistable form.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) ([]byte, error) {
	payload := synthesizePayload{
		Model:          req.Model,
		Input:          req.Text,
		ResponseFormat: "mp3",
		Stream:         false,
	}
	if voice, ok := EncodeVoiceParam(req.Model, req.Voice); ok {
		payload.Voice = voice
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setAuth(httpReq, req.Credential)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
		return nil, normalizeError("synthesize", res.StatusCode, raw)
	}

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesize response: %w", err)
	}
	if len(audio) == 0 {
		return nil, &Error{Op: "synthesize", Status: res.StatusCode, Message: "synthesize returned empty audio"}
	}
	return audio, nil
}

// Transcribe sends recorded audio to the provider's transcription endpoint.
// An empty transcript is a valid result meaning no speech was recognized.
func (c *Client) Transcribe(ctx context.Context, credential, filename string, audio []byte) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("model", c.transcriptionModel); err != nil {
		return "", fmt.Errorf("write transcribe form: %w", err)
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("write transcribe form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write transcribe form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("write transcribe form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("build transcribe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	setAuth(httpReq, credential)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", normalizeError("transcribe", res.StatusCode, raw)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", normalizeError("transcribe", res.StatusCode, raw)
	}
	return strings.TrimSpace(parsed.Text), nil
}

func setAuth(req *http.Request, credential string) {
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(credential))
}
