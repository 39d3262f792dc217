// task_repository.go implements TaskRepository. Reads always return TaskView rows joined
// with the assignee and creator so handlers never issue follow-up queries.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/task-manager/task-manager/internal/db/models"
)

// TaskRepository handles task database operations
type TaskRepository struct {
	db sqlx.ExtContext
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db sqlx.ExtContext) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskViewSelect = `
	SELECT t.id, t.title, t.description, t.status, t.priority, t.organization_id,
	       t.created_by_id, t.assigned_to_id, t.created_at, t.updated_at,
	       a.email AS assignee_email, a.first_name AS assignee_first_name, a.last_name AS assignee_last_name,
	       c.email AS creator_email, c.first_name AS creator_first_name, c.last_name AS creator_last_name
	FROM tasks t
	LEFT JOIN users a ON a.id = t.assigned_to_id
	LEFT JOIN users c ON c.id = t.created_by_id
`

// taskViewRow is the flat shape of taskViewSelect
type taskViewRow struct {
	models.Task
	AssigneeEmail     sql.NullString `db:"assignee_email"`
	AssigneeFirstName sql.NullString `db:"assignee_first_name"`
	AssigneeLastName  sql.NullString `db:"assignee_last_name"`
	CreatorEmail      sql.NullString `db:"creator_email"`
	CreatorFirstName  sql.NullString `db:"creator_first_name"`
	CreatorLastName   sql.NullString `db:"creator_last_name"`
}

func (row *taskViewRow) view() *models.TaskView {
	v := &models.TaskView{Task: row.Task}
	if row.AssignedToID != nil && row.AssigneeEmail.Valid {
		v.AssignedTo = &models.UserSummary{
			ID:        *row.AssignedToID,
			Email:     row.AssigneeEmail.String,
			FirstName: row.AssigneeFirstName.String,
			LastName:  row.AssigneeLastName.String,
		}
	}
	if row.CreatorEmail.Valid {
		v.CreatedBy = &models.UserSummary{
			ID:        row.CreatedByID,
			Email:     row.CreatorEmail.String,
			FirstName: row.CreatorFirstName.String,
			LastName:  row.CreatorLastName.String,
		}
	}
	return v
}

// CreateTask inserts a task, assigning its ID and timestamps
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	task.ID = uuid.New().String()
	task.CreatedAt = time.Now().UTC()
	task.UpdatedAt = task.CreatedAt

	query := `
		INSERT INTO tasks (id, title, description, status, priority, organization_id, created_by_id, assigned_to_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.OrganizationID,
		task.CreatedByID,
		task.AssignedToID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// UpdateTask overwrites the mutable columns of a task. organization_id and created_by_id
// are never written. Concurrent updates are last-write-wins.
func (r *TaskRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5, assigned_to_id = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.AssignedToID,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return expectOneRow(result, "task", task.ID)
}

// DeleteTask removes a task
func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectOneRow(result, "task", id)
}

// GetTaskView retrieves a task with its assignee and creator. Returns (nil, nil) when absent.
func (r *TaskRepository) GetTaskView(ctx context.Context, id string) (*models.TaskView, error) {
	row := &taskViewRow{}
	err := sqlx.GetContext(ctx, r.db, row, taskViewSelect+` WHERE t.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return row.view(), nil
}

// ListTaskViews returns the tasks matching filter, newest first
func (r *TaskRepository) ListTaskViews(ctx context.Context, filter models.TaskFilter) ([]*models.TaskView, error) {
	conditions := []string{"t.organization_id = $1"}
	args := []interface{}{filter.OrganizationID}

	if filter.ParticipantID != "" {
		conditions = append(conditions, "(t.assigned_to_id = $2 OR t.created_by_id = $2)")
		args = append(args, filter.ParticipantID)
	}

	query := taskViewSelect + ` WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY t.created_at DESC`

	rows := make([]*taskViewRow, 0)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	views := make([]*models.TaskView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

// ErrNoRowsAffected is returned when an UPDATE or DELETE matched nothing
var ErrNoRowsAffected = errors.New("no rows affected")

func expectOneRow(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s %s: %w", entity, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNoRowsAffected)
	}
	return nil
}
