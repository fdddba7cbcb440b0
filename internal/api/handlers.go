package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tcmhub/internal/access"
	"tcmhub/internal/apperr"
	"tcmhub/internal/auth"
	"tcmhub/internal/events"
	"tcmhub/internal/logger"
	"tcmhub/internal/models"
	"tcmhub/internal/service/assistant"
	"tcmhub/internal/service/community"
	"tcmhub/internal/service/profile"
	"tcmhub/internal/shell"
	"tcmhub/internal/worker"

	"github.com/gin-gonic/gin"
)

const (
	clientCookieName = "tcmhub_client"
	clientContextKey = "client_key"
)

// Handler wires HTTP requests to the stores.
type Handler struct {
	auth       *auth.Service
	clientKeys *auth.ClientKeys
	sessions   *assistant.Service
	replies    *worker.Manager
	forum      *community.Forum
	videos     *community.Videos
	users      *profile.Directory
	shell      *shell.Registry
	hub        *events.Hub
	log        *logger.Logger
}

// Deps lists the components a Handler needs. Log is optional; a nil
// ClientKeys signs with a per-process secret.
type Deps struct {
	Auth       *auth.Service
	ClientKeys *auth.ClientKeys
	Sessions   *assistant.Service
	Replies    *worker.Manager
	Forum      *community.Forum
	Videos     *community.Videos
	Users      *profile.Directory
	Shell      *shell.Registry
	Hub        *events.Hub
	Log        *logger.Logger
}

// NewHandler builds the HTTP handler set.
func NewHandler(d Deps) (*Handler, error) {
	keys := d.ClientKeys
	if keys == nil {
		var err error
		if keys, err = auth.NewClientKeys(""); err != nil {
			return nil, err
		}
	}
	return &Handler{
		auth:       d.Auth,
		clientKeys: keys,
		sessions:   d.Sessions,
		replies:    d.Replies,
		forum:      d.Forum,
		videos:     d.Videos,
		users:      d.Users,
		shell:      d.Shell,
		hub:        d.Hub,
		log:        logger.OrNop(d.Log).With("component", "API"),
	}, nil
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Use(h.clientKey(), h.auth.Middleware(h.users), h.auth.CSRFMiddleware())

	api.POST("/login", h.login)
	api.POST("/logout", h.logout)
	api.GET("/me", h.me)
	api.GET("/home", h.home)

	api.GET("/shell", h.getShell)
	api.POST("/shell/navigate", h.navigate)
	api.POST("/shell/login-prompt", h.promptLogin)
	api.POST("/shell/login-prompt/dismiss", h.dismissLogin)

	chat := api.Group("/chat/sessions")
	chat.GET("", h.listSessions)
	chat.POST("", h.createSession)
	chat.GET("/:id", h.getSession)
	chat.DELETE("/:id", h.deleteSession)
	chat.POST("/:id/activate", h.activateSession)
	chat.POST("/:id/messages", h.sendMessage)
	chat.POST("/:id/retry", h.retryReply)

	posts := api.Group("/posts")
	posts.GET("", h.listPosts)
	posts.POST("", h.createPost)
	posts.GET("/categories", h.postCategories)
	posts.GET("/:id", h.getPost)
	posts.POST("/:id/comments", h.commentPost)
	posts.POST("/:id/like", h.likePost)
	posts.POST("/:id/publish", h.publishPost)

	videos := api.Group("/videos")
	videos.GET("", h.listVideos)
	videos.POST("", h.createVideo)
	videos.GET("/tags", h.videoTags)
	videos.GET("/categories", h.videoCategories)
	videos.GET("/:id", h.openVideo)
	videos.POST("/:id/comments", h.commentVideo)
	videos.POST("/:id/like", h.likeVideo)
	videos.POST("/:id/publish", h.publishVideo)

	api.GET("/users/:id", h.getUser)
	api.PATCH("/users/:id", h.updateUser)
	api.GET("/users/:id/history", h.userHistory)
	api.GET("/notifications", h.listNotifications)
	api.POST("/notifications/:id/read", h.readNotification)

	api.GET("/events", h.streamEvents)
}

// clientKey identifies the browser for shell state, independent of login.
// The cookie wins over the X-Client-Key header; a missing or forged key is
// replaced with a freshly minted one.
func (h *Handler) clientKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := c.Cookie(clientCookieName)
		if err != nil || !h.clientKeys.Valid(key) {
			key = c.GetHeader("X-Client-Key")
		}
		if !h.clientKeys.Valid(key) {
			key, err = h.clientKeys.Mint()
			if err != nil {
				h.log.Error("mint client key", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "client key"})
				return
			}
			setCookie(c, &http.Cookie{
				Name:     clientCookieName,
				Value:    key,
				Path:     "/",
				HttpOnly: true,
				Secure:   gin.Mode() == gin.ReleaseMode,
				SameSite: http.SameSiteLaxMode,
			})
			c.Header("X-Client-Key", key)
		}
		h.shell.Touch(key)
		c.Set(clientContextKey, key)
		c.Next()
	}
}

func clientKeyFrom(c *gin.Context) string {
	return c.GetString(clientContextKey)
}

type loginRequest struct {
	Preset string `json:"preset"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.users.Preset(req.Preset)
	if err != nil {
		h.fail(c, err)
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error("issue token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	st := h.shell.Login(clientKeyFrom(c))
	c.JSON(http.StatusOK, gin.H{
		"user":       user,
		"auth_token": authToken,
		"shell":      st,
	})
}

// logout revokes the request's token, or with ?all=true every token of the
// viewer so other devices are signed out too.
func (h *Handler) logout(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	if c.Query("all") == "true" && viewer.Role != models.RoleGuest {
		if err := h.auth.RevokeUserTokens(c.Request.Context(), viewer.ID); err != nil {
			h.log.Warn("revoke user tokens", "user_id", viewer.ID, "error", err)
		}
	} else if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			h.log.Warn("revoke token", "error", err)
		}
	}
	h.clearAuthCookies(c)
	st := h.shell.Logout(clientKeyFrom(c))
	c.JSON(http.StatusOK, gin.H{"status": "logged out", "shell": st})
}

func (h *Handler) me(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	user, err := h.users.Get(viewer.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"unread_count": h.users.UnreadCount(viewer.ID),
		"permissions":  permissionsOf(viewer.Role),
	})
}

func (h *Handler) home(c *gin.Context) {
	viewer := auth.ViewerFromContext(c)
	user, err := h.users.Get(viewer.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":           user,
		"featured_video": h.videos.Featured(),
		"latest_post":    h.forum.Latest(),
		"unread_count":   h.users.UnreadCount(viewer.ID),
	})
}

// fail maps the error taxonomy onto HTTP. A guest denial also raises the
// client's login prompt.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		ve     *apperr.ValidationError
		denial *apperr.Denial
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": ve.Field})
	case errors.As(err, &denial):
		if denial.LoginRequired {
			st := h.shell.PromptLogin(clientKeyFrom(c))
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "login_required": true, "shell": st})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrGatewayFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// eventWriter prepares the response for server-sent events.
func eventWriter(c *gin.Context) (func(event string, payload interface{}) error, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return nil, false
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	return func(event string, payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, true
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}

func permissionsOf(role models.Role) []string {
	actions := access.Permissions(role)
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	return out
}
