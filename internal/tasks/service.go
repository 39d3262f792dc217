// Package tasks implements the task service. Every operation runs the authorization engine
// before touching storage, and every successful mutation is written together with its audit
// entry in one transaction.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/task-manager/task-manager/internal/audit"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/telemetry"
)

// DeleteResult confirms a deletion
type DeleteResult struct {
	Message string `json:"message"`
}

// Service orchestrates task operations
type Service struct {
	store  Store
	engine *authz.Engine
	audit  *audit.Log
}

// NewService creates a task service
func NewService(store Store, engine *authz.Engine, auditLog *audit.Log) *Service {
	return &Service{store: store, engine: engine, audit: auditLog}
}

// Create validates the assignee, persists a task in the actor's organization and records a
// CREATE entry. The returned view has the assignee and creator resolved.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (view *models.TaskView, err error) {
	defer func() { observe(authz.OpCreate, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	req := authz.Request{Actor: actor, Operation: authz.OpCreate}
	if in.AssignedToID != nil {
		if req.Assignee, err = s.lookupAssignee(ctx, *in.AssignedToID); err != nil {
			return nil, err
		}
	}
	if err := s.decide(ctx, req).Err(); err != nil {
		return nil, err
	}

	task := &models.Task{
		Title:          in.Title,
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		OrganizationID: actor.OrganizationID,
		CreatedByID:    actor.ID,
		AssignedToID:   in.AssignedToID,
	}
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	}

	var entry *models.AuditLog
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, tx, audit.Entry{
			Action:         models.AuditActionCreate,
			EntityType:     models.EntityTypeTask,
			EntityID:       task.ID,
			UserID:         actor.ID,
			OrganizationID: actor.OrganizationID,
			Changes: map[string]interface{}{
				models.TaskFieldTitle:        task.Title,
				models.TaskFieldAssignedToID: task.AssignedToID,
			},
		})
		if err != nil {
			return err
		}
		view, err = tx.FindTaskByID(ctx, task.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Publish(entry)
	return view, nil
}

// List returns the tasks the actor may see, newest first
func (s *Service) List(ctx context.Context, actor authz.Actor) (views []*models.TaskView, err error) {
	defer func() { observe(authz.OpList, err) }()
	return s.store.QueryTasks(ctx, s.engine.ListScope(actor))
}

// Get returns one task. A missing task is ErrNotFound; a task the actor may not read is
// ErrForbidden.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id string) (view *models.TaskView, err error) {
	defer func() { observe(authz.OpRead, err) }()
	return s.get(ctx, actor, id)
}

func (s *Service) get(ctx context.Context, actor authz.Actor, id string) (*models.TaskView, error) {
	// IDs are UUID columns; anything else cannot exist.
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	view, err := s.store.FindTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, ErrNotFound
	}
	req := authz.Request{Actor: actor, Operation: authz.OpRead, Target: authz.TargetOf(&view.Task)}
	if err := s.decide(ctx, req).Err(); err != nil {
		return nil, err
	}
	return view, nil
}

// Update applies patch to a task. The whole patch is rejected when any key is not mutable
// for the actor; nothing is written in that case.
func (s *Service) Update(ctx context.Context, actor authz.Actor, id string, patch *Patch) (view *models.TaskView, err error) {
	defer func() { observe(authz.OpUpdate, err) }()

	if patch == nil {
		patch = &Patch{}
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	current, err := s.get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	req := authz.Request{
		Actor:     actor,
		Operation: authz.OpUpdate,
		Target:    authz.TargetOf(&current.Task),
		Fields:    patch.Keys(),
	}
	if patch.AssignedToID != nil {
		if req.Assignee, err = s.lookupAssignee(ctx, *patch.AssignedToID); err != nil {
			return nil, err
		}
	}
	decision := s.decide(ctx, req)
	if err := decision.Err(); err != nil {
		return nil, err
	}

	task := current.Task
	before := snapshotOf(&task)
	patch.applyTo(&task, decision.MutableFields)
	after := snapshotOf(&task)

	ops, err := diff(before, after)
	if err != nil {
		return nil, err
	}

	var entry *models.AuditLog
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.SaveTask(ctx, &task); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, tx, audit.Entry{
			Action:         models.AuditActionUpdate,
			EntityType:     models.EntityTypeTask,
			EntityID:       task.ID,
			UserID:         actor.ID,
			OrganizationID: actor.OrganizationID,
			Changes:        updateChanges{Old: before, New: after, Patch: ops},
		})
		if err != nil {
			return err
		}
		view, err = tx.FindTaskByID(ctx, task.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, ErrNotFound
	}

	s.audit.Publish(entry)
	return view, nil
}

// Delete removes a task the actor is allowed to delete and records a DELETE entry
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id string) (result *DeleteResult, err error) {
	defer func() { observe(authz.OpDelete, err) }()

	current, err := s.get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	req := authz.Request{Actor: actor, Operation: authz.OpDelete, Target: authz.TargetOf(&current.Task)}
	if err := s.decide(ctx, req).Err(); err != nil {
		return nil, err
	}

	var entry *models.AuditLog
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.DeleteTask(ctx, id); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, tx, audit.Entry{
			Action:         models.AuditActionDelete,
			EntityType:     models.EntityTypeTask,
			EntityID:       id,
			UserID:         actor.ID,
			OrganizationID: actor.OrganizationID,
			Changes:        map[string]interface{}{models.TaskFieldTitle: current.Title},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Publish(entry)
	return &DeleteResult{Message: "Task deleted successfully"}, nil
}

func (s *Service) lookupAssignee(ctx context.Context, id string) (*authz.Assignee, error) {
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up assignee: %w", err)
	}
	return authz.AssigneeOf(id, u), nil
}

// decide evaluates req and records the outcome
func (s *Service) decide(ctx context.Context, req authz.Request) authz.Decision {
	d := s.engine.Evaluate(req)
	telemetry.AuthzDecisionsTotal.WithLabelValues(string(req.Operation), string(d.Effect), string(d.Reason)).Inc()
	if !d.Allowed() {
		slog.InfoContext(ctx, "task access denied",
			"operation", req.Operation,
			"user_id", req.Actor.ID,
			"role", req.Actor.Role,
			"rule", d.Rule,
			"reason", d.Reason,
		)
	}
	return d
}

func observe(op authz.Operation, err error) {
	telemetry.TaskOperationsTotal.WithLabelValues(string(op), outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidAssignee):
		return "invalid_assignee"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
