// Package database provides the PostgreSQL connection pool and the SQL
// migration runner for the coordination server.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antonio12761/roxy-bar-sub000/internal/config"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
)

const (
	maxConns        = 25
	minConns        = 5
	connMaxLifetime = time.Hour
	connMaxIdle     = 30 * time.Minute
	connectAttempts = 5
	pingTimeout     = 5 * time.Second
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger *logger.Logger
}

// New opens the connection pool, retrying while the database comes up.
func New(cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	poolCfg.MaxConnLifetime = connMaxLifetime
	poolCfg.MaxConnIdleTime = connMaxIdle

	var pool *pgxpool.Pool
	for attempt := 1; ; attempt++ {
		pool, err = open(poolCfg)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", connectAttempts, err)
		}
		wait := time.Duration(attempt) * 2 * time.Second
		log.Error("db_connection_failed",
			fmt.Sprintf("Failed to connect to database, retrying in %v", wait),
			"startup", err, nil)
		time.Sleep(wait)
	}

	return &DB{Pool: pool, logger: log}, nil
}

func open(poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// BeginTx starts a transaction with the given options.
func (db *DB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return db.Pool.BeginTx(ctx, opts)
}

// Exec runs a statement without returning rows.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := db.Pool.Exec(ctx, sql, args...)
	return err
}

// Query runs a query returning rows.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.Pool.Query(ctx, sql, args...)
}

// QueryRow runs a query expected to return at most one row.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.Pool.QueryRow(ctx, sql, args...)
}
