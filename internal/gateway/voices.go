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

	"github.com/speechdesk/speechdesk/internal/message"
)

// DefaultVoiceID is the provider's implicit default voice. When selected, the
// voice parameter is omitted entirely and the provider picks its own default.
// Provider-specific convention, asserted by observed behavior rather than
// documented.
const DefaultVoiceID = "default"

// EncodeVoiceParam renders a voice descriptor into the wire-level voice
// parameter. Custom voices pass their URI directly; system voices are encoded
// as "<model>:<voice-id>". The second return reports whether the parameter
// should be sent at all.
func EncodeVoiceParam(model string, v message.Voice) (string, bool) {
	id := strings.TrimSpace(v.ID)
	if v.Type == message.VoiceCustom {
		if id == "" {
			return "", false
		}
		return id, true
	}
	if id == "" || id == DefaultVoiceID {
		return "", false
	}
	return model + ":" + id, true
}

type voicePayload struct {
	URI        string `json:"uri"`
	ID         string `json:"id"`
	CustomName string `json:"customName"`
	Name       string `json:"name"`
}

func (p voicePayload) toVoice() (message.Voice, bool) {
	id := strings.TrimSpace(p.URI)
	if id == "" {
		id = strings.TrimSpace(p.ID)
	}
	if id == "" {
		return message.Voice{}, false
	}
	name := strings.TrimSpace(p.CustomName)
	if name == "" {
		name = strings.TrimSpace(p.Name)
	}
	if name == "" {
		name = id
	}
	return message.Voice{ID: id, Name: name, Type: message.VoiceCustom}, true
}

// parseVoiceList accepts the envelope shapes the list endpoint has been seen
// to return: a bare array, an object wrapping the array under result, results
// or data, or a single bare voice object. Entries without a usable identifier
// are dropped. Fails explicitly when no shape matches.
func parseVoiceList(body []byte) ([]message.Voice, error) {
	collect := func(items []voicePayload) []message.Voice {
		out := make([]message.Voice, 0, len(items))
		for _, item := range items {
			if v, ok := item.toVoice(); ok {
				out = append(out, v)
			}
		}
		return out
	}

	var plain []voicePayload
	if err := json.Unmarshal(body, &plain); err == nil {
		return collect(plain), nil
	}

	var wrapped struct {
		Result  json.RawMessage `json:"result"`
		Results json.RawMessage `json:"results"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		for _, raw := range []json.RawMessage{wrapped.Result, wrapped.Results, wrapped.Data} {
			if len(raw) == 0 {
				continue
			}
			var items []voicePayload
			if err := json.Unmarshal(raw, &items); err == nil {
				return collect(items), nil
			}
		}

		var single voicePayload
		if err := json.Unmarshal(body, &single); err == nil {
			if v, ok := single.toVoice(); ok {
				return []message.Voice{v}, nil
			}
		}
	}

	return nil, fmt.Errorf("voice list: unrecognized response shape")
}

// ListVoices fetches the user's custom voices.
func (c *Client) ListVoices(ctx context.Context, credential string) ([]message.Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/audio/voice/list", nil)
	if err != nil {
		return nil, fmt.Errorf("build voice list request: %w", err)
	}
	setAuth(httpReq, credential)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, normalizeError("list voices", res.StatusCode, raw)
	}

	voices, err := parseVoiceList(raw)
	if err != nil {
		return nil, normalizeError("list voices", res.StatusCode, raw)
	}
	return voices, nil
}

type UploadVoiceRequest struct {
	Name          string
	ReferenceText string
	Model         string
	Audio         []byte
	Filename      string
	Credential    string
}

// UploadVoice registers a custom voice from a reference recording. The
// provider may echo a logical error code inside an HTTP 200 response; that is
// treated as a failure, not an optional check.
func (c *Client) UploadVoice(ctx context.Context, req UploadVoiceRequest) (message.Voice, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := map[string]string{
		"model":      req.Model,
		"customName": req.Name,
		"text":       req.ReferenceText,
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return message.Voice{}, fmt.Errorf("write upload form: %w", err)
		}
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "reference.wav"
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return message.Voice{}, fmt.Errorf("write upload form: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return message.Voice{}, fmt.Errorf("write upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return message.Voice{}, fmt.Errorf("write upload form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads/audio/voice", &buf)
	if err != nil {
		return message.Voice{}, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	setAuth(httpReq, req.Credential)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return message.Voice{}, fmt.Errorf("upload voice: %w", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return message.Voice{}, normalizeError("upload voice", res.StatusCode, raw)
	}

	var parsed struct {
		URI     string          `json:"uri"`
		ID      string          `json:"id"`
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return message.Voice{}, normalizeError("upload voice", res.StatusCode, raw)
	}
	if code := strings.Trim(string(parsed.Code), `"`); code != "" && code != "null" && code != "0" && code != "200" {
		return message.Voice{}, normalizeError("upload voice", res.StatusCode, raw)
	}

	id := strings.TrimSpace(parsed.URI)
	if id == "" {
		id = strings.TrimSpace(parsed.ID)
	}
	if id == "" {
		return message.Voice{}, normalizeError("upload voice", res.StatusCode, raw)
	}
	return message.Voice{ID: id, Name: strings.TrimSpace(req.Name), Type: message.VoiceCustom}, nil
}

// DeleteVoice removes a custom voice by URI and returns the provider's
// free-form confirmation text.
func (c *Client) DeleteVoice(ctx context.Context, credential, id string) (string, error) {
	body, err := json.Marshal(map[string]string{"uri": id})
	if err != nil {
		return "", fmt.Errorf("marshal delete request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/voice/deletions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build delete request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setAuth(httpReq, credential)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("delete voice: %w", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", normalizeError("delete voice", res.StatusCode, raw)
	}
	return strings.TrimSpace(string(raw)), nil
}
