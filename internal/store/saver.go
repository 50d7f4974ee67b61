package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/speechdesk/speechdesk/internal/message"
)

const defaultSaveDebounce = 500 * time.Millisecond

// Saver coalesces bursts of message mutations into one history write, no
// sooner than the debounce interval after the last change. On quota failure
// it evicts exactly one record per failed save and retries.
type Saver struct {
	history  *History
	snapshot func() []message.Message
	onEvict  func(id string)
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func NewSaver(history *History, debounce time.Duration, snapshot func() []message.Message, onEvict func(id string)) *Saver {
	if debounce <= 0 {
		debounce = defaultSaveDebounce
	}
	return &Saver{
		history:  history,
		snapshot: snapshot,
		onEvict:  onEvict,
		debounce: debounce,
	}
}

// Kick schedules a flush after the debounce interval, resetting any pending
// timer so rapid mutations collapse into a single write.
func (s *Saver) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.Flush(context.Background())
	})
}

// Flush writes the current terminal messages immediately. Quota failures
// degrade to one-at-a-time eviction: oldest success scanning from the tail of
// the newest-first list, or the oldest record of any kind when no success
// remains. Persistence trouble never propagates to the session.
func (s *Saver) Flush(ctx context.Context) {
	messages := s.snapshot()
	for {
		err := s.history.Save(ctx, messages)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrQuotaExceeded) {
			log.Printf("history save failed: %v", err)
			return
		}

		victim, ok := oldestEvictable(messages)
		if !ok {
			log.Printf("history quota exceeded with nothing left to evict")
			return
		}
		log.Printf("history quota exceeded, evicting message %s", victim)
		messages = removeByID(messages, victim)
		if s.onEvict != nil {
			s.onEvict(victim)
		}
	}
}

// Close stops the debounce timer and performs a final flush.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.Flush(context.Background())
}

// oldestEvictable picks the eviction victim from a newest-first list: the
// oldest success record, or the oldest terminal record when no success
// exists. Pending records are never victims; they are excluded from the
// serialized blob, so evicting one would shrink nothing while killing a
// live in-flight card.
func oldestEvictable(messages []message.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Status == message.StatusSuccess {
			return messages[i].ID, true
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Terminal() {
			return messages[i].ID, true
		}
	}
	return "", false
}

func removeByID(messages []message.Message, id string) []message.Message {
	out := make([]message.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID == id {
			continue
		}
		out = append(out, m)
	}
	return out
}
