// Package users lists and creates accounts inside the caller's organization.
package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/api/apierror"
	"github.com/task-manager/task-manager/internal/auth"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/db/repositories"
	"github.com/task-manager/task-manager/internal/middleware"
)

// CreateRequest describes a new user in the caller's organization
type CreateRequest struct {
	Email     string      `json:"email" binding:"required,email,max=255"`
	Password  string      `json:"password" binding:"required,min=6,max=72"`
	FirstName string      `json:"firstName" binding:"required,max=100"`
	LastName  string      `json:"lastName" binding:"required,max=100"`
	Role      models.Role `json:"role" binding:"required,userrole"`
}

// Handlers serves /api/users
type Handlers struct {
	store      Store
	bcryptCost int
}

// NewHandlers creates user handlers. Passwords are hashed with bcryptCost.
func NewHandlers(store Store, bcryptCost int) *Handlers {
	return &Handlers{store: store, bcryptCost: bcryptCost}
}

// @Summary      List users
// @Description  Members of the caller's organization, for picking an assignee.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.User
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/users [get]
// ListUsersHandler lists users in the caller's organization
// GET /api/users
func (h *Handlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		users, err := h.store.ListByOrganization(c.Request.Context(), actor.OrganizationID)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// @Summary      Create user
// @Description  Add a user to the caller's organization. Only owners may create owners.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRequest  true  "User"
// @Success      201  {object}  models.User
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/users [post]
// CreateUserHandler creates a user in the caller's organization
// POST /api/users
func (h *Handlers) CreateUserHandler() gin.HandlerFunc {
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
		if req.Role == models.RoleOwner && actor.Role != models.RoleOwner {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": "Only owners may create owners",
			})
			return
		}

		hash, err := auth.HashPassword(req.Password, h.bcryptCost)
		if err != nil {
			apierror.Write(c, err)
			return
		}

		user := &models.User{
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         req.Role,
		}
		if err := h.store.Create(c.Request.Context(), actor, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicateEmail) {
				c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
				return
			}
			apierror.Write(c, err)
			return
		}

		slog.InfoContext(c.Request.Context(), "user created",
			"user_id", user.ID, "organization_id", user.OrganizationID, "role", user.Role, "created_by", actor.ID)
		c.JSON(http.StatusCreated, user)
	}
}
