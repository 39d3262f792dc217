package accounts

import (
	"context"

	"github.com/task-manager/task-manager/internal/audit"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/db/repositories"
)

// Store is the persistence the account handlers need
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
	// Register creates a root organization and its first user together
	Register(ctx context.Context, org *models.Organization, user *models.User) error
}

// SQLStore implements Store on the repositories
type SQLStore struct {
	store *repositories.Store
	audit *audit.Log
}

// NewSQLStore creates a Store. Registrations are audited through log.
func NewSQLStore(store *repositories.Store, log *audit.Log) *SQLStore {
	return &SQLStore{store: store, audit: log}
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.store.Users.GetUserByEmail(ctx, email)
}

func (s *SQLStore) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	return s.store.Organizations.GetOrganizationByID(ctx, id)
}

func (s *SQLStore) Register(ctx context.Context, org *models.Organization, user *models.User) error {
	var entries []*models.AuditLog
	err := s.store.WithinTx(ctx, func(tx *repositories.Store) error {
		if err := tx.Organizations.CreateOrganization(ctx, org); err != nil {
			return err
		}
		user.OrganizationID = org.ID
		if err := tx.Users.CreateUser(ctx, user); err != nil {
			return err
		}

		orgEntry, err := s.audit.Record(ctx, tx, audit.Entry{
			Action:         models.AuditActionCreate,
			EntityType:     models.EntityTypeOrganization,
			EntityID:       org.ID,
			UserID:         user.ID,
			OrganizationID: org.ID,
			Changes:        map[string]interface{}{"name": org.Name},
		})
		if err != nil {
			return err
		}
		userEntry, err := s.audit.Record(ctx, tx, audit.Entry{
			Action:         models.AuditActionCreate,
			EntityType:     models.EntityTypeUser,
			EntityID:       user.ID,
			UserID:         user.ID,
			OrganizationID: org.ID,
			Changes:        map[string]interface{}{"email": user.Email, "role": user.Role},
		})
		if err != nil {
			return err
		}
		entries = []*models.AuditLog{orgEntry, userEntry}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.Publish(entries...)
	return nil
}
