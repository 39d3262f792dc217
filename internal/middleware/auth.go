// Package middleware provides the Gin middleware shared by every API route.
//
// The router installs them in this order:
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders → ClientVersion → RateLimit → Auth
//
// Auth resolves the bearer token to an authz.Actor that handlers read with ActorFromContext.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/auth"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
)

// Context keys set by AuthMiddleware
const (
	ActorKey  = "actor"
	UserKey   = "user"
	UserIDKey = "user_id"
)

// UserLookup loads the account named in a token
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware requires a valid bearer JWT. The user is reloaded on every request so a
// changed role or deleted account takes effect without waiting for the token to expire.
func AuthMiddleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to load token user", "user_id", claims.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Set(ActorKey, authz.Actor{ID: user.ID, OrganizationID: user.OrganizationID, Role: user.Role})
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

// ActorFromContext returns the actor set by AuthMiddleware
func ActorFromContext(c *gin.Context) (authz.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return authz.Actor{}, false
	}
	actor, ok := v.(authz.Actor)
	return actor, ok
}

// UserFromContext returns the user loaded by AuthMiddleware
func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}
