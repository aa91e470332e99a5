// Package sql owns the database/sql connection pool and goose migrations
// backing the optional SQL repository implementations in
// internal/repository/sql; internal/repository's in-memory defaults need
// none of this.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver          string        // "pgx" for PostgreSQL, "sqlite" for SQLite
	DSN             string        // Data Source Name / connection string
	MaxOpenConns    int           // Maximum open connections (default: 25)
	MaxIdleConns    int           // Maximum idle connections (default: 5)
	ConnMaxLifetime time.Duration // Connection max lifetime (default: 5min)
	ConnMaxIdleTime time.Duration // Connection max idle time (default: 1min)
}

// NewDB opens a connection pool per cfg, verifies it, and runs migrations.
func NewDB(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	// Open database connection
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool with defaults if not set
	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 1 * time.Minute
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations using goose with embedded files.
func runMigrations(db *sql.DB, driver string) error {
	// Set the dialect based on the driver
	dialect := "sqlite3"
	if driver == "pgx" {
		dialect = "postgres"
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	// Set the base FS for migrations
	goose.SetBaseFS(embedMigrations)

	// Run migrations from embedded directory
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// NewPostgresDB opens a PostgreSQL-backed pool with default connection settings.
func NewPostgresDB(ctx context.Context, connString string) (*sql.DB, error) {
	return NewDB(ctx, DBConfig{
		Driver: "pgx",
		DSN:    connString,
	})
}

// NewPostgresDBWithConfig opens a PostgreSQL-backed pool with custom connection settings.
func NewPostgresDBWithConfig(ctx context.Context, connString string, poolConfig DBConfig) (*sql.DB, error) {
	poolConfig.Driver = "pgx"
	poolConfig.DSN = connString
	return NewDB(ctx, poolConfig)
}

// NewSQLiteDB opens a SQLite-backed pool with default connection settings.
func NewSQLiteDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	// SQLite DSN with recommended pragmas for better performance and reliability
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dbPath)
	return NewDB(ctx, DBConfig{
		Driver: "sqlite",
		DSN:    dsn,
	})
}

// NewSQLiteDBWithConfig opens a SQLite-backed pool with custom connection settings.
func NewSQLiteDBWithConfig(ctx context.Context, dbPath string, poolConfig DBConfig) (*sql.DB, error) {
	// SQLite DSN with recommended pragmas for better performance and reliability
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dbPath)
	poolConfig.Driver = "sqlite"
	poolConfig.DSN = dsn
	return NewDB(ctx, poolConfig)
}
