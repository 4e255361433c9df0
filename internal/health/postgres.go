package health

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresChecker pings the database over its own single-connection handle
type PostgresChecker struct {
	db *sql.DB
}

// NewPostgresChecker opens a lib/pq handle for dsn. The connection is lazy.
func NewPostgresChecker(dsn string) (*PostgresChecker, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &PostgresChecker{db: db}, nil
}

// Name returns "postgres"
func (c *PostgresChecker) Name() string { return "postgres" }

// HealthCheck verifies PostgreSQL connectivity
func (c *PostgresChecker) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the handle
func (c *PostgresChecker) Close() error {
	return c.db.Close()
}
