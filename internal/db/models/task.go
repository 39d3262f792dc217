// Package models - task.go defines the Task model, its status and priority enumerations,
// and the joined TaskView returned to API clients.
package models

import "time"

// TaskStatus is the workflow state of a task
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority ranks a task
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Valid reports whether p is a known priority
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// Task field names as they appear in API payloads and audit records
const (
	TaskFieldTitle        = "title"
	TaskFieldDescription  = "description"
	TaskFieldStatus       = "status"
	TaskFieldPriority     = "priority"
	TaskFieldAssignedToID = "assignedToId"
)

// TaskMutableFields lists every field a fully privileged actor may change on update.
// organizationId and createdById are never mutable.
var TaskMutableFields = []string{
	TaskFieldTitle,
	TaskFieldDescription,
	TaskFieldStatus,
	TaskFieldPriority,
	TaskFieldAssignedToID,
}

// Task represents a unit of work owned by an organization
type Task struct {
	ID             string       `db:"id" json:"id"`
	Title          string       `db:"title" json:"title"`
	Description    string       `db:"description" json:"description"`
	Status         TaskStatus   `db:"status" json:"status"`
	Priority       TaskPriority `db:"priority" json:"priority"`
	OrganizationID string       `db:"organization_id" json:"organizationId"`
	CreatedByID    string       `db:"created_by_id" json:"createdById"`
	AssignedToID   *string      `db:"assigned_to_id" json:"assignedToId"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

// IsAssignedTo reports whether the task is currently assigned to userID
func (t *Task) IsAssignedTo(userID string) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

// TaskView is a task joined with summaries of its assignee and creator
type TaskView struct {
	Task
	AssignedTo *UserSummary `json:"assignedTo"`
	CreatedBy  *UserSummary `json:"createdBy"`
}

// TaskFilter narrows task listings. OrganizationID is always required; when
// ParticipantID is set only tasks created by or assigned to that user match.
type TaskFilter struct {
	OrganizationID string
	ParticipantID  string
}
