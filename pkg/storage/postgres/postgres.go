// Package postgres provides PostgreSQL execution storage.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/storage/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Storage implements storage.ExecutionStorage on PostgreSQL.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStorage connects to PostgreSQL and runs pending migrations.
func NewStorage(ctx context.Context, logger *slog.Logger, databaseURL string) (*Storage, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Storage{
		db:     database,
		logger: logger,
	}, nil
}

// Close closes the database connection.
func (s *Storage) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *Storage) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
