// Package events carries "store changed" notifications from the stores to
// whoever renders them.
package events

import (
	"sync"
	"time"
)

type Topic string

const (
	TopicSessions Topic = "sessions"
	TopicForum    Topic = "forum"
	TopicVideos   Topic = "videos"
	TopicProfiles Topic = "profiles"
	TopicShell    Topic = "shell"
)

// Event describes one completed mutation. OwnerID is set for per-viewer
// state (chat sessions, shell); EntityID names the changed item.
type Event struct {
	Topic    Topic     `json:"topic"`
	Kind     string    `json:"kind"`
	OwnerID  string    `json:"owner_id,omitempty"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
	// Origin is the instance id of a bridged event; empty for local ones.
	Origin string `json:"origin,omitempty"`
}

// Publisher is what stores depend on.
type Publisher interface {
	Publish(Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

// OrDiscard lets constructors accept a nil publisher.
func OrDiscard(p Publisher) Publisher {
	if p == nil {
		return Discard
	}
	return p
}

// Hub fans events out to in-process subscribers. Delivery is synchronous on
// the publishing goroutine, after the store has released its lock.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(Event)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Event)) (cancel func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
