// Package models - user.go defines the User model for task manager accounts. Every user
// belongs to exactly one organization and carries a single role within it.
package models

import "time"

// Role is a user's role inside their organization
type Role string

const (
	RoleOwner    Role = "owner"
	RoleOrgAdmin Role = "org_admin"
	RoleMember   Role = "member"
)

// Roles lists every known role, highest privilege first
var Roles = []Role{RoleOwner, RoleOrgAdmin, RoleMember}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleOrgAdmin, RoleMember:
		return true
	}
	return false
}

// User represents an account in the system
type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	FirstName      string    `db:"first_name" json:"firstName"`
	LastName       string    `db:"last_name" json:"lastName"`
	Role           Role      `db:"role" json:"role"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Summary returns the public subset of the user embedded in task views
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// UserSummary is the compact user shape joined onto tasks (assignee, creator)
type UserSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
