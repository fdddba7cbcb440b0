package api

import (
	"net/http"

	"tcmhub/internal/auth"
	"tcmhub/internal/service/community"

	"github.com/gin-gonic/gin"
)

type createPostRequest struct {
	community.PostDraft
	Publish bool `json:"publish"`
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *Handler) listPosts(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	posts := h.forum.Query(viewer, community.PostQuery{
		Category: c.Query("category"),
		Search:   c.Query("q"),
		Sort:     community.ParseSort(c.Query("sort")),
	})
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *Handler) postCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.forum.Categories()})
}

func (h *Handler) createPost(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	post, err := h.forum.CreatePost(viewer, req.PostDraft, req.Publish)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// getPost opens a post: counts the view and points the shell at it.
func (h *Handler) getPost(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	post, err := h.forum.View(viewer, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	st := h.shell.OpenPost(clientKeyFrom(c), post.ID)
	author, _ := h.users.Get(post.AuthorID)
	c.JSON(http.StatusOK, gin.H{"post": post, "author": author, "shell": st})
}

func (h *Handler) commentPost(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	comment, err := h.forum.AddComment(viewer, c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) likePost(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	likes, err := h.forum.Like(viewer, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"likes": likes})
}

func (h *Handler) publishPost(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	post, err := h.forum.Publish(viewer, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}
