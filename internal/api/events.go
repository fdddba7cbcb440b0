package api

import (
	"time"

	"tcmhub/internal/auth"
	"tcmhub/internal/events"

	"github.com/gin-gonic/gin"
)

const (
	eventBuffer       = 32
	keepaliveInterval = 25 * time.Second
)

// streamEvents pushes "store changed" events to the client over SSE. Shared
// content events go to everyone; per-viewer events only to their owner,
// matched by user id or by client key for shell state. Events that do not
// fit the buffer are dropped; the client refetches on the next one.
func (h *Handler) streamEvents(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	key := clientKeyFrom(c)

	ch := make(chan events.Event, eventBuffer)
	cancel := h.hub.Subscribe(func(e events.Event) {
		if e.OwnerID != "" && e.OwnerID != viewer.ID && e.OwnerID != key {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	defer cancel()

	sendEvent, ok := eventWriter(c)
	if !ok {
		return
	}
	if err := sendEvent("ready", gin.H{"client_key": key, "viewer": viewer}); err != nil {
		return
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sendEvent("ping", gin.H{"at": time.Now().UTC()}); err != nil {
				return
			}
		case e := <-ch:
			if err := sendEvent(string(e.Topic), e); err != nil {
				return
			}
		}
	}
}
