// Package apierror turns service errors into JSON error responses with a consistent shape:
//
//	{"error": "<message>", "details": {...}}
//
// Unknown errors are logged and reported as 500 without leaking their text.
package apierror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/middleware"
	"github.com/task-manager/task-manager/internal/tasks"
	"github.com/task-manager/task-manager/internal/validation"
)

// ErrNotFound is a generic not-found for handlers outside the task service
var ErrNotFound = errors.New("not found")

// Status maps err to an HTTP status and a client-safe message
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound, "Task not found"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, authz.ErrInvalidAssignee):
		return http.StatusUnprocessableEntity, "Assignee must be a user in your organization"
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, tasks.ErrValidation):
		return http.StatusBadRequest, "Validation failed"
	default:
		var fe validation.FieldErrors
		if errors.As(err, &fe) {
			return http.StatusBadRequest, "Validation failed"
		}
		return http.StatusInternalServerError, "Internal server error"
	}
}

// Write aborts the request with the response for err
func Write(c *gin.Context, err error) {
	status, msg := Status(err)
	body := gin.H{"error": msg}

	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		body["details"] = fe
	case status == http.StatusBadRequest:
		body["details"] = err.Error()
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(),
			"request_id", middleware.RequestIDFromContext(c),
			"error", err,
		)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

// BindError aborts with 400 for a request body that could not be decoded or bound
func BindError(c *gin.Context, err error) {
	body := gin.H{"error": "Invalid request body"}
	if described := validation.Describe(err); described != nil {
		var fe validation.FieldErrors
		if errors.As(described, &fe) {
			body["details"] = fe
		} else {
			body["details"] = described.Error()
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
