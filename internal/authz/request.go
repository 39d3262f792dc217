// Package authz decides whether an actor may perform an operation on a task. Decisions are
// computed from an immutable Request by an ordered list of rules; the first rule that
// applies wins. Evaluation has no side effects and performs no I/O, so callers can test a
// decision independently of persistence and must act on it before mutating anything.
package authz

import "github.com/task-manager/task-manager/internal/db/models"

// Operation is the kind of access requested on a task
type Operation string

const (
	OpCreate Operation = "create"
	OpList   Operation = "list"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Actor is the authenticated user reduced to what authorization needs
type Actor struct {
	ID             string
	OrganizationID string
	Role           models.Role
}

// IsMember reports whether the actor holds the least privileged role
func (a Actor) IsMember() bool {
	return a.Role == models.RoleMember
}

// Target is the snapshot of an existing task that a read, update or delete is aimed at
type Target struct {
	OrganizationID string
	CreatedByID    string
	AssignedToID   *string
}

// TargetOf builds a Target from a persisted task
func TargetOf(t *models.Task) *Target {
	if t == nil {
		return nil
	}
	return &Target{
		OrganizationID: t.OrganizationID,
		CreatedByID:    t.CreatedByID,
		AssignedToID:   t.AssignedToID,
	}
}

// isParticipant reports whether userID created or is assigned to the target
func (t *Target) isParticipant(userID string) bool {
	return t.CreatedByID == userID || t.isAssignee(userID)
}

func (t *Target) isAssignee(userID string) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

// Assignee describes the user named in an assignedToId field after it has been looked up.
// Exists is false when no such user was found.
type Assignee struct {
	ID             string
	Exists         bool
	OrganizationID string
}

// AssigneeOf builds an Assignee from a lookup result; u may be nil
func AssigneeOf(id string, u *models.User) *Assignee {
	if u == nil {
		return &Assignee{ID: id}
	}
	return &Assignee{ID: id, Exists: true, OrganizationID: u.OrganizationID}
}

// Request is everything a decision depends on. Fields holds the keys present in an update
// payload. Assignee is set only when the payload names a non-null assignee.
type Request struct {
	Actor     Actor
	Operation Operation
	Target    *Target
	Fields    []string
	Assignee  *Assignee
}
