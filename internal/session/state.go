// Package session holds the live application state for one desk: credential,
// synthesis settings, and the newest-first message list. Components receive
// the state explicitly instead of reading ambient globals, and every mutation
// of the message list is a whole-list replacement keyed by message id so
// concurrent reconciliations compose regardless of order.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/speechdesk/speechdesk/internal/message"
)

type EventType string

const (
	EventMessageCreated  EventType = "message_created"
	EventMessageUpdated  EventType = "message_updated"
	EventMessageRemoved  EventType = "message_removed"
	EventHistoryCleared  EventType = "history_cleared"
	EventPlaybackStarted EventType = "playback_started"
	EventPlaybackStopped EventType = "playback_stopped"
)

type Event struct {
	Type      EventType        `json:"type"`
	Message   *message.Message `json:"message,omitempty"`
	MessageID string           `json:"message_id,omitempty"`
	ActiveID  string           `json:"active_id,omitempty"`
	At        time.Time        `json:"at"`
}

// Settings are the user-facing synthesis preferences.
type Settings struct {
	ModelID           string        `json:"model_id"`
	Voice             message.Voice `json:"voice"`
	SplitEnabled      bool          `json:"split_enabled"`
	ConcurrentEnabled bool          `json:"concurrent_enabled"`
	AutoPlayEnabled   bool          `json:"autoplay_enabled"`
	ConsoleVisible    bool          `json:"console_visible"`
}

type State struct {
	mu sync.RWMutex

	credential    string
	envCredential string
	settings      Settings
	nicknames     map[string]string
	messages      []message.Message

	subscribers map[int]chan Event
	nextSubID   int

	// onMutate fires after any mutation that changes durable content.
	onMutate func()
}

func NewState(envCredential string) *State {
	return &State{
		envCredential: strings.TrimSpace(envCredential),
		nicknames:     make(map[string]string),
		subscribers:   make(map[int]chan Event),
	}
}

func (s *State) SetOnMutate(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutate = hook
}

// Credential returns the user-entered credential, falling back to the
// runtime-environment default when none was configured.
func (s *State) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credential != "" {
		return s.credential
	}
	return s.envCredential
}

func (s *State) SetCredential(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = strings.TrimSpace(credential)
}

func (s *State) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *State) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

func (s *State) AutoPlayEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.AutoPlayEnabled
}

func (s *State) Nicknames() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.nicknames))
	for k, v := range s.nicknames {
		out[k] = v
	}
	return out
}

// SetNickname records a local display-name override for a voice. An empty
// name removes the override.
func (s *State) SetNickname(voiceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		delete(s.nicknames, voiceID)
		return
	}
	s.nicknames[voiceID] = name
}

func (s *State) ReplaceNicknames(nicknames map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nicknames = make(map[string]string, len(nicknames))
	for k, v := range nicknames {
		s.nicknames[k] = v
	}
}

// Messages returns a snapshot of the newest-first message list.
func (s *State) Messages() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.CloneList(s.messages)
}

func (s *State) Get(id string) (message.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return message.Message{}, false
}

// ReplaceMessages installs a loaded history. Used at startup, before any
// subscriber exists.
func (s *State) ReplaceMessages(messages []message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = message.CloneList(messages)
}

// PrependPending inserts a batch of pending records at the front of the list,
// keeping the batch's own order, before any remote call begins.
func (s *State) PrependPending(batch []message.Message) {
	s.mu.Lock()
	next := make([]message.Message, 0, len(batch)+len(s.messages))
	next = append(next, batch...)
	next = append(next, s.messages...)
	s.messages = next
	events := make([]Event, 0, len(batch))
	for i := range batch {
		m := batch[i]
		events = append(events, Event{Type: EventMessageCreated, Message: &m, MessageID: m.ID, At: time.Now().UTC()})
	}
	s.mu.Unlock()

	for _, evt := range events {
		s.Publish(evt)
	}
}

// ResolveSuccess transitions a pending record to success. The update is keyed
// by id so interleaved reconciliations of sibling tasks commute.
func (s *State) ResolveSuccess(id, audioURL string, cost float64, generationMS int64) bool {
	return s.update(id, func(m *message.Message) {
		m.Status = message.StatusSuccess
		m.AudioURL = audioURL
		m.Cost = cost
		m.GenerationMS = generationMS
		m.ErrorMessage = ""
	})
}

// ResolveError transitions a pending record to error with the normalized
// gateway message.
func (s *State) ResolveError(id, errorMessage string) bool {
	return s.update(id, func(m *message.Message) {
		m.Status = message.StatusError
		m.ErrorMessage = errorMessage
	})
}

func (s *State) update(id string, apply func(*message.Message)) bool {
	s.mu.Lock()
	var updated *message.Message
	next := message.CloneList(s.messages)
	for i := range next {
		if next[i].ID == id {
			apply(&next[i])
			m := next[i]
			updated = &m
			break
		}
	}
	if updated == nil {
		s.mu.Unlock()
		return false
	}
	s.messages = next
	hook := s.onMutate
	s.mu.Unlock()

	s.Publish(Event{Type: EventMessageUpdated, Message: updated, MessageID: id, At: time.Now().UTC()})
	if hook != nil {
		hook()
	}
	return true
}

// Remove deletes one message by id.
func (s *State) Remove(id string) bool {
	s.mu.Lock()
	found := false
	next := make([]message.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.ID == id {
			found = true
			continue
		}
		next = append(next, m)
	}
	if !found {
		s.mu.Unlock()
		return false
	}
	s.messages = next
	hook := s.onMutate
	s.mu.Unlock()

	s.Publish(Event{Type: EventMessageRemoved, MessageID: id, At: time.Now().UTC()})
	if hook != nil {
		hook()
	}
	return true
}

// RemovePending drops the records among ids that are still pending. Called
// when a batch settles under cancellation so no pending card is left
// dangling.
func (s *State) RemovePending(ids []string) []string {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	s.mu.Lock()
	var removed []string
	next := make([]message.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if wanted[m.ID] && m.Status == message.StatusPending {
			removed = append(removed, m.ID)
			continue
		}
		next = append(next, m)
	}
	s.messages = next
	s.mu.Unlock()

	for _, id := range removed {
		s.Publish(Event{Type: EventMessageRemoved, MessageID: id, At: time.Now().UTC()})
	}
	return removed
}

// Clear empties the in-memory list.
func (s *State) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	s.Publish(Event{Type: EventHistoryCleared, At: time.Now().UTC()})
}

func (s *State) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

// Publish fans an event out to all subscribers, dropping on saturated
// channels so a slow websocket never blocks reconciliation.
func (s *State) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
