// Package organizations serves the caller's organization tree and creation of child
// organizations.
package organizations

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/api/apierror"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/middleware"
)

// CreateRequest names a new child organization
type CreateRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// Handlers serves /api/organizations
type Handlers struct {
	store Store
}

// NewHandlers creates organization handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// @Summary      Current organization
// @Description  The caller's organization with all of its descendants nested under children.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.OrganizationNode
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/organizations/current [get]
// CurrentOrganizationHandler returns the caller's organization tree
// GET /api/organizations/current
func (h *Handlers) CurrentOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		orgs, err := h.store.Subtree(c.Request.Context(), actor.OrganizationID)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		tree := models.BuildOrganizationTree(actor.OrganizationID, orgs)
		if tree == nil {
			apierror.Write(c, apierror.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, tree)
	}
}

// @Summary      Create child organization
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRequest  true  "Organization"
// @Success      201  {object}  models.Organization
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Router       /api/organizations [post]
// CreateOrganizationHandler creates an organization under the caller's organization
// POST /api/organizations
func (h *Handlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.BindError(c, err)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Validation failed",
				"details": gin.H{"name": "is required"},
			})
			return
		}

		org := &models.Organization{Name: name}
		if err := h.store.CreateChild(c.Request.Context(), actor, org); err != nil {
			apierror.Write(c, err)
			return
		}

		slog.InfoContext(c.Request.Context(), "organization created",
			"organization_id", org.ID, "parent_id", actor.OrganizationID, "user_id", actor.ID)
		c.JSON(http.StatusCreated, org)
	}
}
