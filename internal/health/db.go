package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker checks the Postgres connection pool.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database and confirms the schema is migrated.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	var one int
	if err := d.db.QueryRowContext(ctx, "SELECT 1 FROM projects LIMIT 1").Scan(&one); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query projects: %w", err)
	}
	return nil
}
