package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/validation"
)

// ClientVersionHeader is sent by browser clients with their build version
const ClientVersionHeader = "X-Client-Version"

// ClientVersionMiddleware rejects clients older than minimum with 426. Requests without
// the header pass. An empty minimum disables the check.
func ClientVersionMiddleware(minimum string, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	return func(c *gin.Context) {
		v := c.GetHeader(ClientVersionHeader)
		if minimum == "" || v == "" || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ok, err := validation.ClientSupported(v, minimum)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Malformed " + ClientVersionHeader + " header",
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUpgradeRequired, gin.H{
				"error":          "Client version is no longer supported",
				"minimumVersion": minimum,
			})
			return
		}
		c.Next()
	}
}
