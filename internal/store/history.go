package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/speechdesk/speechdesk/internal/message"
)

// History persists the message list as a single JSON blob under KeyHistory.
// Only terminal-state records are durable: a pending record left in storage
// would resurrect as permanently stuck after a reload. Error records are
// persisted alongside successes so the user keeps a trace of what failed.
type History struct {
	kv       KV
	maxBytes int
}

func NewHistory(kv KV, maxBytes int) *History {
	return &History{kv: kv, maxBytes: maxBytes}
}

// Save writes the terminal subset of messages. Returns ErrQuotaExceeded when
// the serialized blob is over capacity; the caller evicts one record and
// retries.
func (h *History) Save(ctx context.Context, messages []message.Message) error {
	terminal := make([]message.Message, 0, len(messages))
	for _, m := range messages {
		if m.Terminal() {
			terminal = append(terminal, m)
		}
	}

	blob, err := json.Marshal(terminal)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if h.maxBytes > 0 && len(blob) > h.maxBytes {
		return ErrQuotaExceeded
	}
	return h.kv.Set(ctx, KeyHistory, string(blob))
}

// Load returns the persisted messages, or an empty list when nothing was
// stored or the stored blob is malformed. Startup never fails on bad history.
func (h *History) Load(ctx context.Context) ([]message.Message, error) {
	raw, err := h.kv.Get(ctx, KeyHistory)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var messages []message.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, nil
	}
	return messages, nil
}

func (h *History) Clear(ctx context.Context) error {
	return h.kv.Remove(ctx, KeyHistory)
}
