package message

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Message is one synthesis request and its lifecycle. A message is created
// pending, resolves to success or error exactly once, and never transitions
// out of a terminal state except by explicit deletion.
type Message struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Status       Status    `json:"status"`
	AudioURL     string    `json:"audio_url,omitempty"`
	Cost         float64   `json:"cost,omitempty"`
	GenerationMS int64     `json:"generation_ms,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (m Message) Terminal() bool {
	return m.Status == StatusSuccess || m.Status == StatusError
}

type VoiceType string

const (
	VoiceSystem VoiceType = "system"
	VoiceCustom VoiceType = "custom"
)

// Voice identifies a synthesis voice. System voices ship with a model; custom
// voices are user uploads addressed by provider URI.
type Voice struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type VoiceType `json:"type"`
}

// CloneList returns a deep-enough copy of a message list. Messages contain no
// reference fields, so copying the slice is sufficient.
func CloneList(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
