// Package db manages the PostgreSQL connection pool and schema migrations for the task
// manager. Migrations are embedded in the binary so the server can bring the schema up to
// date on startup without external tooling.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect opens a pooled connection to PostgreSQL and verifies it with a ping
func Connect(ctx context.Context, dsn string, maxConnections, minIdleConnections int) (*sqlx.DB, error) {
	database, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database.SetMaxOpenConns(maxConnections)
	database.SetMaxIdleConns(minIdleConnections)
	database.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies ("up") or rolls back ("down") every embedded migration
func RunMigrations(db *sql.DB, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("invalid migration direction: %s (must be 'up' or 'down')", direction)
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}
	return nil
}

// GetMigrationVersion returns the current schema version and whether the last migration
// left the schema dirty
func GetMigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// SchemaState reads the migration bookkeeping row directly. It is cheap enough for
// readiness probes, unlike GetMigrationVersion which opens a migrator.
func SchemaState(ctx context.Context, q sqlx.QueryerContext) (version uint, dirty bool, err error) {
	var row struct {
		Version int64 `db:"version"`
		Dirty   bool  `db:"dirty"`
	}
	err = sqlx.GetContext(ctx, q, &row, `SELECT version, dirty FROM schema_migrations LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema state: %w", err)
	}
	return uint(row.Version), row.Dirty, nil
}

// ClearDirty resets the dirty flag left behind by an interrupted migration so the next
// run can retry it. It reports whether a dirty row was found.
func ClearDirty(ctx context.Context, ext sqlx.ExecerContext) (bool, error) {
	res, err := ext.ExecContext(ctx, `UPDATE schema_migrations SET dirty = false WHERE dirty`)
	if err != nil {
		return false, fmt.Errorf("failed to clear dirty migration state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to clear dirty migration state: %w", err)
	}
	return n > 0, nil
}

// TableCounts holds row counts for the main tables
type TableCounts struct {
	Organizations int64 `db:"organizations"`
	Users         int64 `db:"users"`
	Tasks         int64 `db:"tasks"`
	AuditLogs     int64 `db:"audit_logs"`
}

// CountRows returns row counts for the main tables in a single round trip
func CountRows(ctx context.Context, q sqlx.QueryerContext) (*TableCounts, error) {
	var counts TableCounts
	err := sqlx.GetContext(ctx, q, &counts, `
		SELECT
			(SELECT COUNT(*) FROM organizations) AS organizations,
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM tasks) AS tasks,
			(SELECT COUNT(*) FROM audit_logs) AS audit_logs
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return &counts, nil
}
