// Package tasks exposes the task service over HTTP. Handlers only translate between JSON and
// service calls; every authorization decision is made inside the service.
package tasks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/api/apierror"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/middleware"
	"github.com/task-manager/task-manager/internal/tasks"
)

// maxPatchBytes bounds the PATCH body read before decoding
const maxPatchBytes = 1 << 20

// Service is the subset of *tasks.Service the handlers call
type Service interface {
	Create(ctx context.Context, actor authz.Actor, in tasks.CreateInput) (*models.TaskView, error)
	List(ctx context.Context, actor authz.Actor) ([]*models.TaskView, error)
	Get(ctx context.Context, actor authz.Actor, id string) (*models.TaskView, error)
	Update(ctx context.Context, actor authz.Actor, id string, patch *tasks.Patch) (*models.TaskView, error)
	Delete(ctx context.Context, actor authz.Actor, id string) (*tasks.DeleteResult, error)
}

// Handlers serves /api/tasks
type Handlers struct {
	service Service
}

// NewHandlers creates task handlers backed by service
func NewHandlers(service Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts the task routes on an authenticated group
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tasks", h.ListTasksHandler())
	rg.POST("/tasks", h.CreateTaskHandler())
	rg.GET("/tasks/:id", h.GetTaskHandler())
	rg.PATCH("/tasks/:id", h.UpdateTaskHandler())
	rg.DELETE("/tasks/:id", h.DeleteTaskHandler())
}

func actorOrAbort(c *gin.Context) (authz.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return actor, ok
}

// @Summary      List tasks
// @Description  Tasks in the caller's organization. Members only see tasks they created or are assigned to.
// @Tags         Tasks
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.TaskView
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/tasks [get]
// ListTasksHandler lists the tasks visible to the caller
// GET /api/tasks
func (h *Handlers) ListTasksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		views, err := h.service.List(c.Request.Context(), actor)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, views)
	}
}

// @Summary      Create task
// @Tags         Tasks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  tasks.CreateInput  true  "Task"
// @Success      201  {object}  models.TaskView
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      422  {object}  map[string]interface{}  "Assignee outside the organization"
// @Router       /api/tasks [post]
// CreateTaskHandler creates a task in the caller's organization
// POST /api/tasks
func (h *Handlers) CreateTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var in tasks.CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			apierror.BindError(c, err)
			return
		}

		view, err := h.service.Create(c.Request.Context(), actor, in)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

// @Summary      Get task
// @Tags         Tasks
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Task ID"
// @Success      200  {object}  models.TaskView
// @Failure      403  {object}  map[string]interface{}  "Access denied"
// @Failure      404  {object}  map[string]interface{}  "Task not found"
// @Router       /api/tasks/{id} [get]
// GetTaskHandler returns one task
// GET /api/tasks/:id
func (h *Handlers) GetTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		view, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// @Summary      Update task
// @Description  Partial update. Members may only change the status of tasks assigned to them.
// @Tags         Tasks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "Task ID"
// @Success      200  {object}  models.TaskView
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      403  {object}  map[string]interface{}  "Access denied"
// @Failure      404  {object}  map[string]interface{}  "Task not found"
// @Failure      422  {object}  map[string]interface{}  "Assignee outside the organization"
// @Router       /api/tasks/{id} [patch]
// UpdateTaskHandler applies a partial update
// PATCH /api/tasks/:id
func (h *Handlers) UpdateTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		// The patch is decoded by hand so that the set of keys present in the body survives.
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPatchBytes))
		if err != nil {
			apierror.BindError(c, err)
			return
		}
		var patch tasks.Patch
		if err := json.Unmarshal(body, &patch); err != nil {
			apierror.Write(c, err)
			return
		}

		view, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), &patch)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// @Summary      Delete task
// @Tags         Tasks
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Task ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      403  {object}  map[string]interface{}  "Access denied"
// @Failure      404  {object}  map[string]interface{}  "Task not found"
// @Router       /api/tasks/{id} [delete]
// DeleteTaskHandler removes a task
// DELETE /api/tasks/:id
func (h *Handlers) DeleteTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		result, err := h.service.Delete(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": result.Message})
	}
}
