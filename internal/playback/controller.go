// Package playback tracks which clip is active and drives the auto-advance
// chain: when a clip finishes and autoplay is on, playback hops to the next
// older success record and stops at the first gap.
package playback

import (
	"sync"
	"time"

	"github.com/speechdesk/speechdesk/internal/message"
	"github.com/speechdesk/speechdesk/internal/session"
)

type Controller struct {
	state *session.State

	mu     sync.Mutex
	active string
}

func NewController(state *session.State) *Controller {
	return &Controller{state: state}
}

// Active returns the id of the clip currently playing, or "".
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Play makes the given clip active. Only success records are playable;
// starting a new clip implicitly stops the previous one.
func (c *Controller) Play(id string) bool {
	m, ok := c.state.Get(id)
	if !ok || m.Status != message.StatusSuccess {
		return false
	}

	c.mu.Lock()
	c.active = id
	c.mu.Unlock()

	c.state.Publish(session.Event{Type: session.EventPlaybackStarted, ActiveID: id, At: time.Now().UTC()})
	return true
}

// Finished reports that the active clip ran to completion. With autoplay on,
// playback advances to the next older record if and only if it is a success;
// a pending or error neighbor, or the end of the list, stops the chain.
// Returns the id of the clip now playing, or "".
func (c *Controller) Finished(id string) string {
	c.mu.Lock()
	if c.active != id {
		c.mu.Unlock()
		return c.Active()
	}
	c.active = ""
	c.mu.Unlock()

	if !c.state.AutoPlayEnabled() {
		c.publishStopped()
		return ""
	}

	next, ok := c.nextOlder(id)
	if !ok || next.Status != message.StatusSuccess {
		c.publishStopped()
		return ""
	}
	if !c.Play(next.ID) {
		c.publishStopped()
		return ""
	}
	return next.ID
}

// Stop halts playback without advancing.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasActive := c.active != ""
	c.active = ""
	c.mu.Unlock()
	if wasActive {
		c.publishStopped()
	}
}

// HandleRemoved stops playback if the removed message was the active clip.
func (c *Controller) HandleRemoved(id string) {
	c.mu.Lock()
	if c.active != id {
		c.mu.Unlock()
		return
	}
	c.active = ""
	c.mu.Unlock()
	c.publishStopped()
}

func (c *Controller) publishStopped() {
	c.state.Publish(session.Event{Type: session.EventPlaybackStopped, At: time.Now().UTC()})
}

// nextOlder finds the record immediately after id in the newest-first list,
// i.e. the next older message.
func (c *Controller) nextOlder(id string) (message.Message, bool) {
	messages := c.state.Messages()
	for i, m := range messages {
		if m.ID == id {
			if i+1 < len(messages) {
				return messages[i+1], true
			}
			return message.Message{}, false
		}
	}
	return message.Message{}, false
}
