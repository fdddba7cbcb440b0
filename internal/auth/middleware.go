package auth

import (
	"strings"

	"tcmhub/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	viewerContextKey    = "auth_viewer"
	authTokenContextKey = "auth_token"
)

// UserLookup resolves a user id to the stored user.
type UserLookup interface {
	Get(id string) (*models.User, error)
}

// Middleware resolves the request's token to a viewer. Requests without a
// valid token continue as the guest viewer; the access policy decides what
// a guest may do.
func (s *Service) Middleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := models.Guest
		authToken := s.extractToken(c)
		if authToken != "" {
			userID, err := s.ValidateToken(c.Request.Context(), authToken)
			if err == nil {
				if user, err := users.Get(userID); err == nil {
					viewer = user.Viewer()
					c.Set(authTokenContextKey, authToken)
				}
			} else {
				s.log.Debug("token rejected", "error", err)
			}
		}
		c.Set(viewerContextKey, viewer)
		c.Next()
	}
}

// ViewerFromContext returns the viewer set by the middleware, or the guest.
func ViewerFromContext(c *gin.Context) models.Viewer {
	val, ok := c.Get(viewerContextKey)
	if !ok {
		return models.Guest
	}
	viewer, ok := val.(models.Viewer)
	if !ok {
		return models.Guest
	}
	return viewer
}

// AuthTokenFromContext retrieves the validated token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
