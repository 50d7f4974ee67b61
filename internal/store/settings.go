package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/speechdesk/speechdesk/internal/message"
)

// Settings exposes the logical settings keys over a KV with typed accessors.
// Reads degrade to zero values on malformed data; settings are never a reason
// to fail startup.
type Settings struct {
	kv KV
}

func NewSettings(kv KV) *Settings {
	return &Settings{kv: kv}
}

func (s *Settings) Credential(ctx context.Context) string {
	v, _ := s.kv.Get(ctx, KeyCredential)
	return strings.TrimSpace(v)
}

func (s *Settings) SetCredential(ctx context.Context, credential string) error {
	return s.kv.Set(ctx, KeyCredential, strings.TrimSpace(credential))
}

func (s *Settings) ModelID(ctx context.Context) string {
	v, _ := s.kv.Get(ctx, KeyModelID)
	return strings.TrimSpace(v)
}

func (s *Settings) SetModelID(ctx context.Context, modelID string) error {
	return s.kv.Set(ctx, KeyModelID, strings.TrimSpace(modelID))
}

func (s *Settings) Voice(ctx context.Context) (message.Voice, bool) {
	raw, _ := s.kv.Get(ctx, KeyVoice)
	if strings.TrimSpace(raw) == "" {
		return message.Voice{}, false
	}
	var v message.Voice
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return message.Voice{}, false
	}
	return v, true
}

func (s *Settings) SetVoice(ctx context.Context, v message.Voice) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeyVoice, string(blob))
}

func (s *Settings) Flag(ctx context.Context, key string) bool {
	v, _ := s.kv.Get(ctx, key)
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func (s *Settings) SetFlag(ctx context.Context, key string, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return s.kv.Set(ctx, key, value)
}

func (s *Settings) Nicknames(ctx context.Context) map[string]string {
	raw, _ := s.kv.Get(ctx, KeyVoiceNicknames)
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]string{}
	}
	return out
}

func (s *Settings) SetNicknames(ctx context.Context, nicknames map[string]string) error {
	blob, err := json.Marshal(nicknames)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeyVoiceNicknames, string(blob))
}
