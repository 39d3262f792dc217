package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/config"
)

var defaultCORSMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}

// CORSMiddleware answers browser preflights and sets CORS headers for allowed origins.
// "*" in AllowedOrigins allows any origin; credentials are only allowed for explicit origins.
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowMethods := strings.Join(methods, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if match := matchOrigin(cfg.AllowedOrigins, origin); origin != "" && match != "" {
			if match == "*" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", match)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Client-Version")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// matchOrigin returns origin when it is listed, "*" when only the wildcard matches, or ""
func matchOrigin(allowed []string, origin string) string {
	wildcard := false
	for _, a := range allowed {
		if a == origin {
			return origin
		}
		if a == "*" {
			wildcard = true
		}
	}
	if wildcard {
		return "*"
	}
	return ""
}
