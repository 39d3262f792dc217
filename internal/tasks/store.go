package tasks

import (
	"context"
	"errors"

	"github.com/task-manager/task-manager/internal/audit"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/db/repositories"
)

// Store is the persistence the service needs. Reads inside WithinTx observe the writes
// made earlier in the same transaction.
type Store interface {
	audit.Appender
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindTaskByID(ctx context.Context, id string) (*models.TaskView, error)
	QueryTasks(ctx context.Context, filter models.TaskFilter) ([]*models.TaskView, error)
	InsertTask(ctx context.Context, task *models.Task) error
	SaveTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// SQLStore adapts the repository bundle to Store
type SQLStore struct {
	*repositories.Store
}

// NewSQLStore wraps s
func NewSQLStore(s *repositories.Store) *SQLStore {
	return &SQLStore{Store: s}
}

// WithinTx runs fn inside one database transaction
func (s *SQLStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.Store.WithinTx(ctx, func(tx *repositories.Store) error {
		return fn(&SQLStore{Store: tx})
	})
}

// SaveTask maps a vanished row to ErrNotFound
func (s *SQLStore) SaveTask(ctx context.Context, task *models.Task) error {
	return notFound(s.Store.SaveTask(ctx, task))
}

// DeleteTask maps a vanished row to ErrNotFound
func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	return notFound(s.Store.DeleteTask(ctx, id))
}

func notFound(err error) error {
	if errors.Is(err, repositories.ErrNoRowsAffected) {
		return ErrNotFound
	}
	return err
}
