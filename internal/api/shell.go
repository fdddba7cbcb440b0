package api

import (
	"net/http"

	"tcmhub/internal/models"
	"tcmhub/internal/shell"

	"github.com/gin-gonic/gin"
)

type navigateRequest struct {
	Tab    string         `json:"tab"`
	Target *models.Target `json:"target"`
}

func (h *Handler) getShell(c *gin.Context) {
	c.JSON(http.StatusOK, h.shell.Snapshot(clientKeyFrom(c)))
}

func (h *Handler) navigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tab, err := shell.ParseTab(req.Tab)
	if err != nil {
		h.fail(c, err)
		return
	}
	st, err := h.shell.NavigateTo(clientKeyFrom(c), tab, req.Target)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) promptLogin(c *gin.Context) {
	c.JSON(http.StatusOK, h.shell.PromptLogin(clientKeyFrom(c)))
}

func (h *Handler) dismissLogin(c *gin.Context) {
	c.JSON(http.StatusOK, h.shell.DismissLogin(clientKeyFrom(c)))
}
