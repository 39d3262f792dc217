// Package main is a diagnostic for database connectivity. It loads the server
// configuration, connects, prints the migration state and row counts for the main tables,
// and exits non-zero on any failure so it can gate a deployment step.
//
// Usage:
//
//	check-db [-config path] [-fix-dirty]
//
// -fix-dirty clears the dirty flag left by an interrupted migration so the next
// "server migrate up" can retry it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/db"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	fixDirty := flag.Bool("fix-dirty", false, "clear a dirty migration flag")
	flag.Parse()

	if err := run(*configPath, *fixDirty); err != nil {
		fmt.Fprintln(os.Stderr, "check-db:", err)
		os.Exit(1)
	}
}

func run(configPath string, fixDirty bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), 2, 0)
	if err != nil {
		return err
	}
	defer database.Close()
	fmt.Printf("Connected to %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	version, dirty, err := db.SchemaState(ctx, database)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version: %d (dirty=%v)\n", version, dirty)

	if dirty {
		if !fixDirty {
			return fmt.Errorf("schema is dirty; rerun with -fix-dirty after checking the failed migration")
		}
		if _, err := db.ClearDirty(ctx, database); err != nil {
			return err
		}
		fmt.Println("Dirty flag cleared")
		return nil
	}

	counts, err := db.CountRows(ctx, database)
	if err != nil {
		return err
	}
	fmt.Printf("Organizations: %d\nUsers: %d\nTasks: %d\nAudit entries: %d\n",
		counts.Organizations, counts.Users, counts.Tasks, counts.AuditLogs)
	return nil
}
