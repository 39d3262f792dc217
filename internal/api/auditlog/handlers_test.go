package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	orgOne   = "11111111-1111-4111-8111-111111111111"
	orgTwo   = "22222222-2222-4222-8222-222222222222"
	childOrg = "33333333-3333-4333-8333-333333333333"
	taskOne  = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	taskTwo  = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
	deleted  = "cccccccc-cccc-4ccc-8ccc-cccccccccccc"
	userOne  = "dddddddd-dddd-4ddd-8ddd-dddddddddddd"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeLog struct {
	entries []*models.AuditLog
	err     error
}

func (f *fakeLog) ByOrganization(_ context.Context, orgID string) ([]*models.AuditLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.AuditLog
	for _, e := range f.entries {
		if e.OrganizationID == orgID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLog) ByEntity(_ context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.AuditLog
	for _, e := range f.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeEntities struct{}

func (fakeEntities) FindTaskByID(_ context.Context, id string) (*models.TaskView, error) {
	switch id {
	case taskOne:
		return &models.TaskView{Task: models.Task{ID: id, OrganizationID: orgOne}}, nil
	case taskTwo:
		return &models.TaskView{Task: models.Task{ID: id, OrganizationID: orgTwo}}, nil
	}
	return nil, nil
}

func (fakeEntities) FindUserByID(_ context.Context, id string) (*models.User, error) {
	if id == userOne {
		return &models.User{ID: id, OrganizationID: orgOne}, nil
	}
	return nil, nil
}

func (fakeEntities) FindOrganizationByID(_ context.Context, id string) (*models.Organization, error) {
	parent := orgOne
	switch id {
	case orgOne, orgTwo:
		return &models.Organization{ID: id}, nil
	case childOrg:
		return &models.Organization{ID: id, ParentID: &parent}, nil
	}
	return nil, nil
}

func entry(entityType, entityID, orgID string) *models.AuditLog {
	return &models.AuditLog{
		Action:         models.AuditActionCreate,
		EntityType:     entityType,
		EntityID:       entityID,
		UserID:         userOne,
		OrganizationID: orgID,
	}
}

func newRouter(log Reader) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ActorKey, authz.Actor{ID: userOne, OrganizationID: orgOne, Role: models.RoleOrgAdmin})
		c.Next()
	})
	h := NewHandlers(log, fakeEntities{})
	r.GET("/api/audit-logs", h.ListAuditLogsHandler())
	r.GET("/api/audit-logs/:entityType/:entityId", h.EntityHistoryHandler())
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestListAuditLogsHandler_ScopedToOrganization(t *testing.T) {
	log := &fakeLog{entries: []*models.AuditLog{
		entry(models.EntityTypeTask, taskOne, orgOne),
		entry(models.EntityTypeTask, taskTwo, orgTwo),
	}}
	w := get(newRouter(log), "/api/audit-logs")
	require.Equal(t, http.StatusOK, w.Code)

	var got []models.AuditLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, taskOne, got[0].EntityID)
}

func TestListAuditLogsHandler_Error(t *testing.T) {
	w := get(newRouter(&fakeLog{err: errors.New("db down")}), "/api/audit-logs")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestEntityHistoryHandler(t *testing.T) {
	log := &fakeLog{entries: []*models.AuditLog{
		entry(models.EntityTypeTask, taskOne, orgOne),
		entry(models.EntityTypeTask, taskTwo, orgTwo),
		entry(models.EntityTypeTask, deleted, orgOne),
		entry(models.EntityTypeTask, deleted, orgTwo),
		entry(models.EntityTypeUser, userOne, orgOne),
		entry(models.EntityTypeOrganization, childOrg, orgOne),
	}}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
	}{
		{"own task", "/api/audit-logs/Task/" + taskOne, http.StatusOK, 1},
		{"foreign task", "/api/audit-logs/Task/" + taskTwo, http.StatusNotFound, 0},
		{"deleted task keeps only own entries", "/api/audit-logs/Task/" + deleted, http.StatusOK, 1},
		{"own user", "/api/audit-logs/User/" + userOne, http.StatusOK, 1},
		{"child organization", "/api/audit-logs/Organization/" + childOrg, http.StatusOK, 1},
		{"foreign organization", "/api/audit-logs/Organization/" + orgTwo, http.StatusNotFound, 0},
		{"unknown entity type", "/api/audit-logs/Invoice/" + taskOne, http.StatusBadRequest, 0},
		{"malformed id", "/api/audit-logs/Task/123", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(newRouter(log), tt.path)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got []models.AuditLog
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Len(t, got, tt.wantCount)
		})
	}
}
