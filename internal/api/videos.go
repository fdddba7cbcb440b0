package api

import (
	"net/http"

	"tcmhub/internal/auth"
	"tcmhub/internal/service/community"

	"github.com/gin-gonic/gin"
)

type createVideoRequest struct {
	community.VideoDraft
	Publish bool `json:"publish"`
}

func (h *Handler) listVideos(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	videos := h.videos.Query(viewer, community.VideoQuery{
		Category: c.Query("category"),
		Paid:     community.ParsePaidFilter(c.Query("paid")),
		Tag:      c.Query("tag"),
		Search:   c.Query("q"),
		Sort:     community.ParseSort(c.Query("sort")),
	})
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

func (h *Handler) videoTags(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tags": h.videos.Tags()})
}

func (h *Handler) videoCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.videos.Categories()})
}

func (h *Handler) createVideo(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	var req createVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	video, err := h.videos.CreateVideo(viewer, req.VideoDraft, req.Publish)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, video)
}

// openVideo plays a video: the paid gate applies, the view is counted and
// recorded in the viewer's history, and the shell selects it.
func (h *Handler) openVideo(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	video, err := h.videos.Open(viewer, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.users.RecordView(viewer, video.ID)
	st := h.shell.OpenVideo(clientKeyFrom(c), video.ID)
	author, _ := h.users.Get(video.AuthorID)
	c.JSON(http.StatusOK, gin.H{"video": video, "author": author, "shell": st})
}

func (h *Handler) commentVideo(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	comment, err := h.videos.AddComment(viewer, c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) likeVideo(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	likes, err := h.videos.Like(viewer, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"likes": likes})
}

func (h *Handler) publishVideo(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	video, err := h.videos.Publish(viewer, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}
