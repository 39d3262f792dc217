// rbac.go gates whole routes on a role capability. Per-task rules that depend on the task
// itself are evaluated by the task service, not here.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/authz"
)

// RequireCapability aborts with 403 unless the actor's role holds capability
func RequireCapability(policy *authz.Policy, capability authz.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if !policy.Can(actor.Role, capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": "Required capability: " + capability.String(),
			})
			return
		}

		c.Next()
	}
}
