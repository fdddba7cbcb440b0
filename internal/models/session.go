package models

import (
	"slices"
	"time"
)

// ChatSession groups the messages of one conversation with the assistant.
type ChatSession struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	LastModified time.Time `json:"last_modified"`
	Tags         []string  `json:"tags"`
	// Thinking is set while one assistant reply is outstanding.
	Thinking  bool   `json:"thinking"`
	LastError string `json:"last_error,omitempty"`
}

// Clone returns a deep copy safe to hand out of a store.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = slices.Clone(s.Messages)
	out.Tags = slices.Clone(s.Tags)
	return &out
}
