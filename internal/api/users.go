package api

import (
	"net/http"

	"tcmhub/internal/apperr"
	"tcmhub/internal/auth"
	"tcmhub/internal/models"
	"tcmhub/internal/service/profile"

	"github.com/gin-gonic/gin"
)

// resolveUserID maps the "me" alias to the viewer.
func resolveUserID(c *gin.Context, viewer models.Viewer) string {
	id := c.Param("id")
	if id == "me" {
		return viewer.ID
	}
	return id
}

// getUser shows a profile page together with the user's visible posts and
// videos. A guest has no page of their own.
func (h *Handler) getUser(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	userID := resolveUserID(c, viewer)
	if userID == viewer.ID && viewer.IsGuest() {
		h.fail(c, &apperr.Denial{Action: "profile:view_own", LoginRequired: true})
		return
	}
	user, err := h.users.Get(userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	self := userID == viewer.ID
	if !self {
		user.Email = ""
		user.History = nil
		user.Notifications = nil
	}

	resp := gin.H{
		"user":   user,
		"self":   self,
		"posts":  h.forum.ByAuthor(viewer, userID),
		"videos": h.videos.ByAuthor(viewer, userID),
	}
	if !self {
		resp["shell"] = h.shell.ViewUser(clientKeyFrom(c), userID)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) updateUser(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	var upd profile.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.users.UpdateProfile(viewer, resolveUserID(c, viewer), upd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// userHistory returns the watch history as video snapshots. Videos that are
// no longer visible are skipped.
func (h *Handler) userHistory(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	ids, err := h.users.History(viewer, resolveUserID(c, viewer))
	if err != nil {
		h.fail(c, err)
		return
	}
	videos := make([]*models.Video, 0, len(ids))
	for _, id := range ids {
		if v, err := h.videos.Get(viewer, id); err == nil {
			videos = append(videos, v)
		}
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

func (h *Handler) listNotifications(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	if viewer.IsGuest() {
		h.fail(c, &apperr.Denial{Action: "notification:list", LoginRequired: true})
		return
	}
	user, err := h.users.Get(viewer.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": user.Notifications,
		"unread_count":  h.users.UnreadCount(viewer.ID),
	})
}

// readNotification marks a notification read and follows its target.
func (h *Handler) readNotification(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	n, err := h.users.MarkNotificationRead(viewer, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	st, err := h.shell.OpenNotification(clientKeyFrom(c), n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n, "shell": st})
}
