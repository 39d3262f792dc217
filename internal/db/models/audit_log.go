// Package models - audit_log.go defines the append-only AuditLog record written for every
// successful mutation.
package models

import (
	"encoding/json"
	"time"
)

// AuditAction is the kind of mutation recorded
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// Valid reports whether a is a known action
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete:
		return true
	}
	return false
}

// Entity types that appear in audit records
const (
	EntityTypeTask         = "Task"
	EntityTypeOrganization = "Organization"
	EntityTypeUser         = "User"
)

// AuditLog is one entry in the audit trail. OrganizationID is the acting user's
// organization at write time.
type AuditLog struct {
	ID             string          `db:"id" json:"id"`
	Action         AuditAction     `db:"action" json:"action"`
	EntityType     string          `db:"entity_type" json:"entityType"`
	EntityID       string          `db:"entity_id" json:"entityId"`
	UserID         string          `db:"user_id" json:"userId"`
	OrganizationID string          `db:"organization_id" json:"organizationId"`
	Changes        json.RawMessage `db:"changes" json:"changes"`
	Timestamp      time.Time       `db:"timestamp" json:"timestamp"`
}
