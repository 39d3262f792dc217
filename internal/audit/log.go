// Package audit keeps the append-only trail of mutating actions. Entries are written to
// the database in the same transaction as the change they describe, then optionally
// forwarded to external destinations (webhook, file) through the Shipper interface once
// the transaction has committed.
//
// Audit records are separate from application logs: they are immutable, scoped to the
// acting user's organization at write time, and read back through the API by roles that
// hold the audit:read capability.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/safego"
	"github.com/task-manager/task-manager/internal/telemetry"
)

// DefaultOrganizationLimit caps ByOrganization results
const DefaultOrganizationLimit = 100

// ErrInvalidEntry is returned when an entry is missing required fields
var ErrInvalidEntry = errors.New("invalid audit entry")

// Appender writes one audit entry. Both the store and a transaction-bound store satisfy it.
type Appender interface {
	AppendAudit(ctx context.Context, entry *models.AuditLog) error
}

// Store is the persistence behind the audit log
type Store interface {
	Appender
	AuditByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error)
	AuditByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error)
}

// Log records and queries audit entries
type Log struct {
	store   Store
	shipper Shipper
	limit   int
}

// Option configures a Log
type Option func(*Log)

// WithShipper forwards published entries to s
func WithShipper(s Shipper) Option {
	return func(l *Log) { l.shipper = s }
}

// WithOrganizationLimit overrides DefaultOrganizationLimit
func WithOrganizationLimit(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.limit = n
		}
	}
}

// NewLog creates a Log over store
func NewLog(store Store, opts ...Option) *Log {
	l := &Log{store: store, limit: DefaultOrganizationLimit}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Entry describes a mutation to record. Changes is marshalled to JSON; nil is stored as NULL.
type Entry struct {
	Action         models.AuditAction
	EntityType     string
	EntityID       string
	UserID         string
	OrganizationID string
	Changes        interface{}
}

// Record validates e and appends it through w, which is normally the transaction that
// performed the mutation. A nil w writes through the Log's own store. The written entry
// is returned so the caller can Publish it after commit.
func (l *Log) Record(ctx context.Context, w Appender, e Entry) (*models.AuditLog, error) {
	if !e.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	if e.EntityType == "" || e.EntityID == "" || e.UserID == "" || e.OrganizationID == "" {
		return nil, fmt.Errorf("%w: entity, user and organization are required", ErrInvalidEntry)
	}

	entry := &models.AuditLog{
		Action:         e.Action,
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		UserID:         e.UserID,
		OrganizationID: e.OrganizationID,
		Timestamp:      time.Now().UTC(),
	}
	if e.Changes != nil {
		raw, err := json.Marshal(e.Changes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		entry.Changes = raw
	}

	if w == nil {
		w = l.store
	}
	if err := w.AppendAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	telemetry.AuditEntriesTotal.WithLabelValues(string(entry.Action), entry.EntityType).Inc()
	return entry, nil
}

// Publish ships committed entries in the background. It never blocks the caller and
// shipping errors are only logged by the shipper.
func (l *Log) Publish(entries ...*models.AuditLog) {
	if l.shipper == nil || len(entries) == 0 {
		return
	}
	shipper := l.shipper
	safego.Go("audit-publish", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, e := range entries {
			if e == nil {
				continue
			}
			_ = shipper.Ship(ctx, e)
		}
	})
}

// ByOrganization returns the most recent entries written by members of orgID, newest first
func (l *Log) ByOrganization(ctx context.Context, orgID string) ([]*models.AuditLog, error) {
	return l.store.AuditByOrganization(ctx, orgID, l.limit)
}

// ByEntity returns every entry for one entity, newest first
func (l *Log) ByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	return l.store.AuditByEntity(ctx, entityType, entityID)
}
