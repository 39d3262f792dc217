package organizations

import (
	"context"

	"github.com/task-manager/task-manager/internal/audit"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/db/repositories"
)

// Store is the persistence the organization handlers need
type Store interface {
	Subtree(ctx context.Context, rootID string) ([]*models.Organization, error)
	// CreateChild inserts org under the actor's organization and audits it
	CreateChild(ctx context.Context, actor authz.Actor, org *models.Organization) error
}

// SQLStore implements Store on the repositories
type SQLStore struct {
	store *repositories.Store
	audit *audit.Log
}

// NewSQLStore creates a Store that audits through log
func NewSQLStore(store *repositories.Store, log *audit.Log) *SQLStore {
	return &SQLStore{store: store, audit: log}
}

func (s *SQLStore) Subtree(ctx context.Context, rootID string) ([]*models.Organization, error) {
	return s.store.Organizations.GetSubtree(ctx, rootID)
}

func (s *SQLStore) CreateChild(ctx context.Context, actor authz.Actor, org *models.Organization) error {
	parent := actor.OrganizationID
	org.ParentID = &parent

	var entry *models.AuditLog
	err := s.store.WithinTx(ctx, func(tx *repositories.Store) error {
		if err := tx.Organizations.CreateOrganization(ctx, org); err != nil {
			return err
		}
		var err error
		entry, err = s.audit.Record(ctx, tx, audit.Entry{
			Action:         models.AuditActionCreate,
			EntityType:     models.EntityTypeOrganization,
			EntityID:       org.ID,
			UserID:         actor.ID,
			OrganizationID: actor.OrganizationID,
			Changes:        map[string]interface{}{"name": org.Name, "parentId": parent},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Publish(entry)
	return nil
}
