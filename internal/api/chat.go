package api

import (
	"errors"
	"net/http"

	"tcmhub/internal/access"
	"tcmhub/internal/apperr"
	"tcmhub/internal/auth"
	"tcmhub/internal/worker"

	"github.com/gin-gonic/gin"
)

type messageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) listSessions(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	c.JSON(http.StatusOK, gin.H{
		"sessions":          h.sessions.ListSessions(viewer.ID),
		"active_session_id": h.sessions.ActiveSessionID(viewer.ID),
	})
}

func (h *Handler) createSession(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	session, err := h.sessions.CreateSession(viewer)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) getSession(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	session, err := h.sessions.GetSession(viewer.ID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// deleteSession and activateSession change the session list, which guests
// share, so they need a member.
func (h *Handler) deleteSession(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	if err := access.Check(viewer.Role, access.ActionStartChat); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.sessions.DeleteSession(viewer.ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "deleted",
		"active_session_id": h.sessions.ActiveSessionID(viewer.ID),
	})
}

func (h *Handler) activateSession(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	if err := access.Check(viewer.Role, access.ActionStartChat); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.sessions.SetActive(viewer.ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	st := h.shell.OpenChat(clientKeyFrom(c))
	c.JSON(http.StatusOK, gin.H{"active_session_id": c.Param("id"), "shell": st})
}

// sendMessage appends the user turn and streams the reply outcome: "ack"
// once the message is stored, then "done" or "error". The reply is applied
// to the session even if the client disconnects first.
func (h *Handler) sendMessage(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sessionID := c.Param("id")
	message, outcome, err := h.replies.Send(c.Request.Context(), viewer, sessionID, req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.streamReply(c, sessionID, gin.H{"message": message}, outcome)
}

// retryReply re-asks the last user message after a failed turn.
func (h *Handler) retryReply(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	sessionID := c.Param("id")
	outcome, err := h.replies.Retry(c.Request.Context(), viewer, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.streamReply(c, sessionID, gin.H{"retry": true}, outcome)
}

func (h *Handler) streamReply(c *gin.Context, sessionID string, ack gin.H, outcome <-chan worker.Outcome) {
	sendEvent, ok := eventWriter(c)
	if !ok {
		return
	}
	if err := sendEvent("ack", ack); err != nil {
		return
	}

	select {
	case <-c.Request.Context().Done():
		return
	case res := <-outcome:
		if res.Err != nil {
			_ = sendEvent("error", gin.H{
				"message":   res.Err.Error(),
				"retryable": errors.Is(res.Err, apperr.ErrGatewayFailure),
			})
			return
		}
		payload := gin.H{"message": res.Message}
		viewer := auth.ViewerFromContext(c)
		if session, err := h.sessions.GetSession(viewer.ID, sessionID); err == nil {
			payload["session"] = session
		}
		_ = sendEvent("done", payload)
	}
}
