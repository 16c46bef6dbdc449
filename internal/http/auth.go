package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// ContextKeyUser holds the acting *store.User for the request, nil for
// anonymous requests.
const ContextKeyUser = "acting_user"

// TokenAuthMiddleware resolves the acting user from a bearer API token.
// Permission evaluation beyond identity is handled elsewhere.
func TokenAuthMiddleware(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := s.GetUserByToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// AnonymousMiddleware is used when authentication is disabled.
func AnonymousMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyUser, (*store.User)(nil))
		c.Next()
	}
}

// ActingUser returns the authenticated user for the request, nil when
// running without authentication.
func ActingUser(c *gin.Context) *store.User {
	value, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	user, _ := value.(*store.User)
	return user
}
