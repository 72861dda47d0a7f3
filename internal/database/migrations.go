package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// RunMigrations applies every pending .sql file from dir in lexical order.
// Each migration runs in its own transaction together with its
// schema_migrations record, so a failed migration leaves no partial mark.
func (db *DB) RunMigrations(ctx context.Context, dir string) error {
	if err := db.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load applied migrations: %w", err)
	}

	names, err := migrationNames(dir)
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	var count int
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := db.apply(ctx, dir, name); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		count++
		db.logger.Info("migration_applied", fmt.Sprintf("Applied migration %s", name), "startup", nil)
	}

	if count == 0 {
		db.logger.Debug("migrations_current", "Schema already up to date", "startup", nil)
	}
	return nil
}

func (db *DB) ensureVersionTable(ctx context.Context) error {
	return db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			migration_name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`)
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.Query(ctx, "SELECT migration_name FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func migrationNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (db *DB) apply(ctx context.Context, dir, name string) error {
	ddl, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(ddl)); err != nil {
		return fmt.Errorf("failed to execute: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (migration_name) VALUES ($1)", name); err != nil {
		return fmt.Errorf("failed to record: %w", err)
	}
	return tx.Commit(ctx)
}
