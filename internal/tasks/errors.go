package tasks

import (
	"errors"

	"github.com/task-manager/task-manager/internal/authz"
)

var (
	// ErrNotFound is returned when the referenced task does not exist
	ErrNotFound = errors.New("task not found")
	// ErrValidation wraps payload shape errors
	ErrValidation = errors.New("validation failed")

	ErrForbidden       = authz.ErrForbidden
	ErrInvalidAssignee = authz.ErrInvalidAssignee
)
