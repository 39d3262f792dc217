// organization_repository.go implements OrganizationRepository. The hierarchy is stored as a
// parent_id foreign key; subtree reads are answered by a recursive CTE.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/task-manager/task-manager/internal/db/models"
)

// OrganizationRepository handles organization database operations
type OrganizationRepository struct {
	db sqlx.ExtContext
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db sqlx.ExtContext) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// CreateOrganization inserts a new organization, assigning its ID and timestamps
func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	org.ID = uuid.New().String()
	org.CreatedAt = time.Now().UTC()
	org.UpdatedAt = org.CreatedAt

	query := `
		INSERT INTO organizations (id, name, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, org.ID, org.Name, org.ParentID, org.CreatedAt, org.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetOrganizationByID retrieves an organization. Returns (nil, nil) when it does not exist.
func (r *OrganizationRepository) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	org := &models.Organization{}
	query := `SELECT id, name, parent_id, created_at, updated_at FROM organizations WHERE id = $1`
	err := sqlx.GetContext(ctx, r.db, org, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetSubtree returns the organization with the given ID followed by all of its descendants.
// The result is empty when the root does not exist.
func (r *OrganizationRepository) GetSubtree(ctx context.Context, rootID string) ([]*models.Organization, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id, name, parent_id, created_at, updated_at, 0 AS depth
			FROM organizations
			WHERE id = $1
			UNION ALL
			SELECT o.id, o.name, o.parent_id, o.created_at, o.updated_at, s.depth + 1
			FROM organizations o
			JOIN subtree s ON o.parent_id = s.id
		)
		SELECT id, name, parent_id, created_at, updated_at
		FROM subtree
		ORDER BY depth, name
	`
	orgs := make([]*models.Organization, 0)
	if err := sqlx.SelectContext(ctx, r.db, &orgs, query, rootID); err != nil {
		return nil, fmt.Errorf("failed to load organization subtree: %w", err)
	}
	return orgs, nil
}
