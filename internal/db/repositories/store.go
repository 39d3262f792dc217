// store.go groups the repositories behind a single handle and provides transactional units
// of work. A Store returned inside WithinTx routes every repository through the same
// *sqlx.Tx, so a task write and its audit entry commit or roll back together.
package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/task-manager/task-manager/internal/db/models"
)

// Store bundles the repositories that share one database handle
type Store struct {
	db   *sqlx.DB
	inTx bool

	Users         *UserRepository
	Organizations *OrganizationRepository
	Tasks         *TaskRepository
	Audit         *AuditRepository
}

// NewStore creates a Store over the connection pool
func NewStore(db *sqlx.DB) *Store {
	return newStore(db, db, false)
}

func newStore(db *sqlx.DB, ext sqlx.ExtContext, inTx bool) *Store {
	return &Store{
		db:            db,
		inTx:          inTx,
		Users:         NewUserRepository(ext),
		Organizations: NewOrganizationRepository(ext),
		Tasks:         NewTaskRepository(ext),
		Audit:         NewAuditRepository(ext),
	}
}

// WithinTx runs fn against a Store bound to a new transaction. The transaction commits
// when fn returns nil and rolls back otherwise. Calling WithinTx on a Store that is
// already transactional reuses the open transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(newStore(s.db, tx, true)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindUserByID returns the user or (nil, nil) when it does not exist
func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.Users.GetUserByID(ctx, id)
}

// FindOrganizationByID returns the organization or (nil, nil) when it does not exist
func (s *Store) FindOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	return s.Organizations.GetOrganizationByID(ctx, id)
}

// FindTaskByID returns the joined task view or (nil, nil) when it does not exist
func (s *Store) FindTaskByID(ctx context.Context, id string) (*models.TaskView, error) {
	return s.Tasks.GetTaskView(ctx, id)
}

// QueryTasks lists tasks for an organization, optionally narrowed to one participant
func (s *Store) QueryTasks(ctx context.Context, filter models.TaskFilter) ([]*models.TaskView, error) {
	return s.Tasks.ListTaskViews(ctx, filter)
}

// InsertTask persists a new task
func (s *Store) InsertTask(ctx context.Context, task *models.Task) error {
	return s.Tasks.CreateTask(ctx, task)
}

// SaveTask persists changes to an existing task
func (s *Store) SaveTask(ctx context.Context, task *models.Task) error {
	return s.Tasks.UpdateTask(ctx, task)
}

// DeleteTask removes a task
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.Tasks.DeleteTask(ctx, id)
}

// AppendAudit writes one audit entry
func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	return s.Audit.CreateAuditLog(ctx, entry)
}

// AuditByOrganization returns up to limit entries for the organization, newest first
func (s *Store) AuditByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error) {
	return s.Audit.ListByOrganization(ctx, orgID, limit)
}

// AuditByEntity returns all entries for one entity, newest first
func (s *Store) AuditByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	return s.Audit.ListByEntity(ctx, entityType, entityID)
}
