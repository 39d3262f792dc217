package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
)

func TestRequireCapability(t *testing.T) {
	policy := authz.MustPolicy()

	tests := []struct {
		name       string
		actor      *authz.Actor
		capability authz.Capability
		wantStatus int
	}{
		{"no actor", nil, authz.CapAuditRead, http.StatusUnauthorized},
		{"member reading audit", &authz.Actor{ID: "m", Role: models.RoleMember}, authz.CapAuditRead, http.StatusForbidden},
		{"admin reading audit", &authz.Actor{ID: "a", Role: models.RoleOrgAdmin}, authz.CapAuditRead, http.StatusOK},
		{"admin creating organization", &authz.Actor{ID: "a", Role: models.RoleOrgAdmin}, authz.CapOrganizationCreate, http.StatusForbidden},
		{"owner creating organization", &authz.Actor{ID: "o", Role: models.RoleOwner}, authz.CapOrganizationCreate, http.StatusOK},
		{"member listing tasks", &authz.Actor{ID: "m", Role: models.RoleMember}, authz.CapTaskList, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(func(c *gin.Context) {
				if tt.actor != nil {
					c.Set(ActorKey, *tt.actor)
				}
				c.Next()
			})
			r.Use(RequireCapability(policy, tt.capability))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
