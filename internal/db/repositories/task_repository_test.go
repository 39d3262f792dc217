package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/task-manager/task-manager/internal/db/models"
)

var taskViewCols = []string{
	"id", "title", "description", "status", "priority", "organization_id",
	"created_by_id", "assigned_to_id", "created_at", "updated_at",
	"assignee_email", "assignee_first_name", "assignee_last_name",
	"creator_email", "creator_first_name", "creator_last_name",
}

func newTaskRepo(t *testing.T) (*TaskRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewTaskRepository(db), mock
}

func assignedTaskRow(rows *sqlmock.Rows, id, assignee string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "Write report", "Q3 numbers", "todo", "high", "org-1",
		"user-1", assignee, now, now,
		"bob@example.com", "Bob", "Builder",
		"ada@example.com", "Ada", "Lovelace")
}

// ---------------------------------------------------------------------------
// CreateTask
// ---------------------------------------------------------------------------

func TestCreateTask_Success(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(sqlmock.AnyArg(), "Write report", "", models.TaskStatusTodo, models.TaskPriorityMedium,
			"org-1", "user-1", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	task := &models.Task{
		Title:          "Write report",
		Status:         models.TaskStatusTodo,
		Priority:       models.TaskPriorityMedium,
		OrganizationID: "org-1",
		CreatedByID:    "user-1",
	}
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateTask_DBError(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectExec("INSERT INTO tasks").WillReturnError(errDB)

	if err := repo.CreateTask(context.Background(), &models.Task{}); !errors.Is(err, errDB) {
		t.Errorf("err = %v, want wrapped errDB", err)
	}
}

// ---------------------------------------------------------------------------
// UpdateTask / DeleteTask
// ---------------------------------------------------------------------------

func TestUpdateTask_Success(t *testing.T) {
	repo, mock := newTaskRepo(t)
	assignee := "user-2"
	mock.ExpectExec("UPDATE tasks").
		WithArgs("task-1", "t", "d", models.TaskStatusDone, models.TaskPriorityLow, &assignee, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	task := &models.Task{
		ID:           "task-1",
		Title:        "t",
		Description:  "d",
		Status:       models.TaskStatusDone,
		Priority:     models.TaskPriorityLow,
		AssignedToID: &assignee,
	}
	if err := repo.UpdateTask(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}
}

func TestUpdateTask_NoRows(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateTask(context.Background(), &models.Task{ID: "gone"})
	if !errors.Is(err, ErrNoRowsAffected) {
		t.Errorf("err = %v, want ErrNoRowsAffected", err)
	}
}

func TestDeleteTask_Success(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectExec("DELETE FROM tasks WHERE id").
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteTask(context.Background(), "task-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeleteTask_NoRows(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectExec("DELETE FROM tasks").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteTask(context.Background(), "gone"); !errors.Is(err, ErrNoRowsAffected) {
		t.Errorf("err = %v, want ErrNoRowsAffected", err)
	}
}

func TestDeleteTask_DBError(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectExec("DELETE FROM tasks").WillReturnError(errDB)

	if err := repo.DeleteTask(context.Background(), "task-1"); !errors.Is(err, errDB) {
		t.Errorf("err = %v, want wrapped errDB", err)
	}
}

// ---------------------------------------------------------------------------
// GetTaskView
// ---------------------------------------------------------------------------

func TestGetTaskView_WithAssignee(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectQuery("SELECT .* FROM tasks t LEFT JOIN users a").
		WithArgs("task-1").
		WillReturnRows(assignedTaskRow(sqlmock.NewRows(taskViewCols), "task-1", "user-2"))

	v, err := repo.GetTaskView(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil {
		t.Fatal("expected task view, got nil")
	}
	if v.AssignedTo == nil || v.AssignedTo.ID != "user-2" || v.AssignedTo.FirstName != "Bob" {
		t.Errorf("AssignedTo = %+v", v.AssignedTo)
	}
	if v.CreatedBy == nil || v.CreatedBy.ID != "user-1" || v.CreatedBy.Email != "ada@example.com" {
		t.Errorf("CreatedBy = %+v", v.CreatedBy)
	}
	if v.Priority != models.TaskPriorityHigh {
		t.Errorf("Priority = %q, want high", v.Priority)
	}
}

func TestGetTaskView_Unassigned(t *testing.T) {
	repo, mock := newTaskRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows(taskViewCols).AddRow("task-1", "t", "", "todo", "medium", "org-1",
		"user-1", nil, now, now,
		nil, nil, nil,
		"ada@example.com", "Ada", "Lovelace")
	mock.ExpectQuery("SELECT .* FROM tasks t").WillReturnRows(rows)

	v, err := repo.GetTaskView(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AssignedToID != nil || v.AssignedTo != nil {
		t.Errorf("expected no assignee, got %v / %+v", v.AssignedToID, v.AssignedTo)
	}
}

func TestGetTaskView_NotFound(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectQuery("SELECT .* FROM tasks t").WillReturnError(sql.ErrNoRows)

	v, err := repo.GetTaskView(context.Background(), "missing")
	if err != nil || v != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", v, err)
	}
}

func TestGetTaskView_DBError(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectQuery("SELECT .* FROM tasks t").WillReturnError(errDB)

	if _, err := repo.GetTaskView(context.Background(), "task-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListTaskViews
// ---------------------------------------------------------------------------

func TestListTaskViews_Organization(t *testing.T) {
	repo, mock := newTaskRepo(t)
	rows := sqlmock.NewRows(taskViewCols)
	assignedTaskRow(rows, "task-1", "user-2")
	assignedTaskRow(rows, "task-2", "user-2")
	mock.ExpectQuery("WHERE t.organization_id = \\$1 ORDER BY t.created_at DESC").
		WithArgs("org-1").
		WillReturnRows(rows)

	views, err := repo.ListTaskViews(context.Background(), models.TaskFilter{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("len(views) = %d, want 2", len(views))
	}
}

func TestListTaskViews_Participant(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectQuery("t.assigned_to_id = \\$2 OR t.created_by_id = \\$2").
		WithArgs("org-1", "user-2").
		WillReturnRows(assignedTaskRow(sqlmock.NewRows(taskViewCols), "task-1", "user-2"))

	views, err := repo.ListTaskViews(context.Background(), models.TaskFilter{
		OrganizationID: "org-1",
		ParticipantID:  "user-2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 {
		t.Errorf("len(views) = %d, want 1", len(views))
	}
}

func TestListTaskViews_Empty(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectQuery("SELECT .* FROM tasks t").WillReturnRows(sqlmock.NewRows(taskViewCols))

	views, err := repo.ListTaskViews(context.Background(), models.TaskFilter{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if views == nil || len(views) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", views)
	}
}

func TestListTaskViews_DBError(t *testing.T) {
	repo, mock := newTaskRepo(t)
	mock.ExpectQuery("SELECT .* FROM tasks t").WillReturnError(errDB)

	if _, err := repo.ListTaskViews(context.Background(), models.TaskFilter{OrganizationID: "org-1"}); err == nil {
		t.Error("expected error, got nil")
	}
}
