// Package auditlog serves read access to the audit trail. Entries are always scoped to the
// caller's organization; routes are mounted behind the audit:read capability.
package auditlog

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/task-manager/task-manager/internal/api/apierror"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/middleware"
)

// Reader is the query side of *audit.Log
type Reader interface {
	ByOrganization(ctx context.Context, orgID string) ([]*models.AuditLog, error)
	ByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error)
}

// Entities resolves the organization an audited entity belongs to
type Entities interface {
	FindTaskByID(ctx context.Context, id string) (*models.TaskView, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
}

// Handlers serves /api/audit-logs
type Handlers struct {
	log      Reader
	entities Entities
}

// NewHandlers creates audit log handlers
func NewHandlers(log Reader, entities Entities) *Handlers {
	return &Handlers{log: log, entities: entities}
}

// @Summary      List audit logs
// @Description  Most recent audit entries written in the caller's organization.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.AuditLog
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Router       /api/audit-logs [get]
// ListAuditLogsHandler returns the organization's latest entries, newest first
// GET /api/audit-logs
func (h *Handlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		entries, err := h.log.ByOrganization(c.Request.Context(), actor.OrganizationID)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// @Summary      Entity history
// @Description  Audit entries for one Task, User or Organization in the caller's organization.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        entityType  path  string  true  "Task, User or Organization"
// @Param        entityId    path  string  true  "Entity ID"
// @Success      200  {array}   models.AuditLog
// @Failure      400  {object}  map[string]interface{}  "Unknown entity type"
// @Failure      404  {object}  map[string]interface{}  "Not found"
// @Router       /api/audit-logs/{entityType}/{entityId} [get]
// EntityHistoryHandler returns every entry for one entity, newest first
// GET /api/audit-logs/:entityType/:entityId
func (h *Handlers) EntityHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		entityType := c.Param("entityType")
		entityID := c.Param("entityId")
		switch entityType {
		case models.EntityTypeTask, models.EntityTypeUser, models.EntityTypeOrganization:
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Unknown entity type",
				"details": "entityType must be one of Task, User, Organization",
			})
			return
		}
		if uuid.Validate(entityID) != nil {
			apierror.Write(c, apierror.ErrNotFound)
			return
		}

		ctx := c.Request.Context()
		visible, err := h.visible(ctx, actor, entityType, entityID)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		if !visible {
			apierror.Write(c, apierror.ErrNotFound)
			return
		}

		entries, err := h.log.ByEntity(ctx, entityType, entityID)
		if err != nil {
			apierror.Write(c, err)
			return
		}

		// Deleted entities can no longer be resolved, so the entries themselves are
		// filtered to the caller's organization as well.
		scoped := make([]*models.AuditLog, 0, len(entries))
		for _, e := range entries {
			if e.OrganizationID == actor.OrganizationID {
				scoped = append(scoped, e)
			}
		}
		c.JSON(http.StatusOK, scoped)
	}
}

// visible reports whether an existing entity belongs to the actor's organization. An
// entity that no longer exists is visible; its entries are filtered by organization.
func (h *Handlers) visible(ctx context.Context, actor authz.Actor, entityType, id string) (bool, error) {
	switch entityType {
	case models.EntityTypeTask:
		t, err := h.entities.FindTaskByID(ctx, id)
		if err != nil || t == nil {
			return err == nil, err
		}
		return t.OrganizationID == actor.OrganizationID, nil
	case models.EntityTypeUser:
		u, err := h.entities.FindUserByID(ctx, id)
		if err != nil || u == nil {
			return err == nil, err
		}
		return u.OrganizationID == actor.OrganizationID, nil
	default:
		o, err := h.entities.FindOrganizationByID(ctx, id)
		if err != nil || o == nil {
			return err == nil, err
		}
		// Child organizations are created, and audited, from their parent.
		return o.ID == actor.OrganizationID || (o.ParentID != nil && *o.ParentID == actor.OrganizationID), nil
	}
}
