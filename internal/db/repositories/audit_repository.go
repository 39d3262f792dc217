// audit_repository.go implements AuditRepository, the append-only store behind the audit
// trail. There is deliberately no update or delete method.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/task-manager/task-manager/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db sqlx.ExtContext
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, action, entity_type, entity_id, user_id, organization_id, changes, timestamp`

// NULL changes are read back as JSON null so they scan into json.RawMessage.
const auditSelectColumns = `id, action, entity_type, entity_id, user_id, organization_id, COALESCE(changes, 'null'::jsonb) AS changes, timestamp`

// CreateAuditLog appends an entry. The ID is always generated here; the timestamp is
// stamped when the caller left it zero.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = uuid.New().String()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	// A nil RawMessage must reach the driver as NULL, not as an empty byte slice.
	var changes interface{}
	if len(entry.Changes) > 0 {
		changes = []byte(entry.Changes)
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.UserID,
		entry.OrganizationID,
		changes,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListByOrganization returns the most recent entries for an organization, newest first
func (r *AuditRepository) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error) {
	entries := make([]*models.AuditLog, 0)
	query := `SELECT ` + auditSelectColumns + ` FROM audit_logs WHERE organization_id = $1 ORDER BY timestamp DESC LIMIT $2`
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, orgID, limit); err != nil {
		return nil, fmt.Errorf("failed to list organization audit logs: %w", err)
	}
	return entries, nil
}

// ListByEntity returns every entry for one entity, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	entries := make([]*models.AuditLog, 0)
	query := `SELECT ` + auditSelectColumns + ` FROM audit_logs WHERE entity_type = $1 AND entity_id = $2 ORDER BY timestamp DESC`
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list entity audit logs: %w", err)
	}
	return entries, nil
}
