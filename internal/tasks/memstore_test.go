package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/task-manager/task-manager/internal/db/models"
)

var errAuditDown = errors.New("audit store unavailable")

// memStore is an in-memory Store. WithinTx works on a copy that is kept only when fn
// succeeds, so tests can observe rollbacks.
type memStore struct {
	mu sync.Mutex

	users map[string]*models.User
	tasks map[string]*models.Task
	audit []*models.AuditLog
	seq   int

	appendErr error
	inTx      bool
}

func newMemStore(users ...*models.User) *memStore {
	s := &memStore{users: map[string]*models.User{}, tasks: map[string]*models.Task{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) clone() *memStore {
	c := &memStore{
		users:     s.users,
		tasks:     make(map[string]*models.Task, len(s.tasks)),
		audit:     append([]*models.AuditLog(nil), s.audit...),
		seq:       s.seq,
		appendErr: s.appendErr,
		inTx:      true,
	}
	for id, t := range s.tasks {
		cp := *t
		c.tasks[id] = &cp
	}
	return c
}

func (s *memStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	tx := s.clone()
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks, s.audit, s.seq = tx.tasks, tx.audit, tx.seq
	return nil
}

func (s *memStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	return s.users[id], nil
}

func (s *memStore) FindTaskByID(_ context.Context, id string) (*models.TaskView, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return s.view(t), nil
}

func (s *memStore) view(t *models.Task) *models.TaskView {
	v := &models.TaskView{Task: *t, CreatedBy: s.users[t.CreatedByID].Summary()}
	if t.AssignedToID != nil {
		v.AssignedTo = s.users[*t.AssignedToID].Summary()
	}
	return v
}

func (s *memStore) QueryTasks(_ context.Context, f models.TaskFilter) ([]*models.TaskView, error) {
	out := make([]*models.TaskView, 0)
	for _, t := range s.tasks {
		if t.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ParticipantID != "" && t.CreatedByID != f.ParticipantID && !t.IsAssignedTo(f.ParticipantID) {
			continue
		}
		out = append(out, s.view(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) InsertTask(_ context.Context, t *models.Task) error {
	s.seq++
	t.ID = fmt.Sprintf("00000000-0000-4000-8000-%012d", s.seq)
	t.CreatedAt = time.Date(2026, 1, 1, 0, 0, s.seq, 0, time.UTC)
	t.UpdatedAt = t.CreatedAt
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) SaveTask(_ context.Context, t *models.Task) error {
	if _, ok := s.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) DeleteTask(_ context.Context, id string) error {
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) AppendAudit(_ context.Context, e *models.AuditLog) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	e.ID = fmt.Sprintf("audit-%d", len(s.audit)+1)
	s.audit = append(s.audit, e)
	return nil
}

func (s *memStore) AuditByOrganization(_ context.Context, orgID string, limit int) ([]*models.AuditLog, error) {
	out := make([]*models.AuditLog, 0)
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if s.audit[i].OrganizationID == orgID {
			out = append(out, s.audit[i])
		}
	}
	return out, nil
}

func (s *memStore) AuditByEntity(_ context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	out := make([]*models.AuditLog, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		if e := s.audit[i]; e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// seed stores a task directly, bypassing the service
func (s *memStore) seed(t models.Task) string {
	s.seq++
	t.ID = fmt.Sprintf("00000000-0000-4000-8000-%012d", s.seq)
	t.CreatedAt = time.Date(2026, 1, 1, 0, 0, s.seq, 0, time.UTC)
	if t.Status == "" {
		t.Status = models.TaskStatusTodo
	}
	if t.Priority == "" {
		t.Priority = models.TaskPriorityMedium
	}
	s.tasks[t.ID] = &t
	return t.ID
}
