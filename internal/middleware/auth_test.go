package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/auth"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
)

type fakeUsers struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

var (
	adminUser  = &models.User{ID: "admin-1", Email: "admin@one.test", Role: models.RoleOrgAdmin, OrganizationID: "org-1"}
	memberUser = &models.User{ID: "member-1", Email: "member@one.test", Role: models.RoleMember, OrganizationID: "org-1"}
)

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*models.User{adminUser.ID: adminUser, memberUser.ID: memberUser}}
}

func tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := auth.GenerateJWT(u, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}
	return token
}

func newAuthRouter(users UserLookup) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(users))
	r.GET("/whoami", func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "role": actor.Role, "org": actor.OrganizationID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		users      *fakeUsers
		header     func(t *testing.T) string
		wantStatus int
	}{
		{"missing header", newFakeUsers(), func(*testing.T) string { return "" }, http.StatusUnauthorized},
		{"wrong scheme", newFakeUsers(), func(*testing.T) string { return "Basic abc" }, http.StatusUnauthorized},
		{"empty bearer", newFakeUsers(), func(*testing.T) string { return "Bearer   " }, http.StatusUnauthorized},
		{"garbage token", newFakeUsers(), func(*testing.T) string { return "Bearer not.a.jwt" }, http.StatusUnauthorized},
		{"deleted user", &fakeUsers{users: map[string]*models.User{}}, func(t *testing.T) string { return "Bearer " + tokenFor(t, adminUser) }, http.StatusUnauthorized},
		{"lookup failure", &fakeUsers{err: errors.New("db down")}, func(t *testing.T) string { return "Bearer " + tokenFor(t, adminUser) }, http.StatusInternalServerError},
		{"valid token", newFakeUsers(), func(t *testing.T) string { return "Bearer " + tokenFor(t, adminUser) }, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(tt.users)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if h := tt.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_ActorUsesCurrentRole(t *testing.T) {
	// token issued while the user was an admin; the stored role is now member
	token := tokenFor(t, adminUser)
	demoted := *adminUser
	demoted.Role = models.RoleMember
	users := &fakeUsers{users: map[string]*models.User{demoted.ID: &demoted}}

	var got authz.Actor
	r := gin.New()
	r.Use(AuthMiddleware(users))
	r.GET("/", func(c *gin.Context) {
		got, _ = ActorFromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got.Role != models.RoleMember || got.ID != adminUser.ID || got.OrganizationID != "org-1" {
		t.Errorf("actor = %+v, want current member role", got)
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := ActorFromContext(c); ok {
		t.Error("ActorFromContext() ok on empty context")
	}
	if _, ok := UserFromContext(c); ok {
		t.Error("UserFromContext() ok on empty context")
	}
	c.Set(ActorKey, "not an actor")
	if _, ok := ActorFromContext(c); ok {
		t.Error("ActorFromContext() accepted wrong type")
	}
	c.Set(UserKey, memberUser)
	if u, ok := UserFromContext(c); !ok || u.ID != memberUser.ID {
		t.Errorf("UserFromContext() = %v, %v", u, ok)
	}
}
