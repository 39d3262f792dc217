package users

import (
	"context"

	"github.com/task-manager/task-manager/internal/audit"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/db/repositories"
)

// Store is the persistence the user handlers need
type Store interface {
	ListByOrganization(ctx context.Context, orgID string) ([]*models.User, error)
	// Create inserts user into the actor's organization and audits it
	Create(ctx context.Context, actor authz.Actor, user *models.User) error
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

func (s *SQLStore) ListByOrganization(ctx context.Context, orgID string) ([]*models.User, error) {
	return s.store.Users.ListUsersByOrganization(ctx, orgID)
}

func (s *SQLStore) Create(ctx context.Context, actor authz.Actor, user *models.User) error {
	user.OrganizationID = actor.OrganizationID

	var entry *models.AuditLog
	err := s.store.WithinTx(ctx, func(tx *repositories.Store) error {
		if err := tx.Users.CreateUser(ctx, user); err != nil {
			return err
		}
		var err error
		entry, err = s.audit.Record(ctx, tx, audit.Entry{
			Action:         models.AuditActionCreate,
			EntityType:     models.EntityTypeUser,
			EntityID:       user.ID,
			UserID:         actor.ID,
			OrganizationID: actor.OrganizationID,
			Changes:        map[string]interface{}{"email": user.Email, "role": user.Role},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Publish(entry)
	return nil
}
